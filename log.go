package strata

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention for the strata package:
// Info:
//     essential events for abnormal behavior. This level should be silent on
//     normal operation, with the exception of one time (infrequent)
//     initialization data that is useful for monitoring
//     this includes:
//     - refused batches (reserved keys, drained keys)
//     - captured per-call failures surfaced at batch end
// V(1):
//     batch lifecycle - run start/end, chunk boundaries, pacing
// V(2):
//     per-call events. Frequent; filter by the session/run tags in brackets.

type LogFunction func(string, ...any)

func LogFn(v glog.Level, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(v) {
			m := fmt.Sprintf(format, a...)
			glog.Infof("%s %s\n", tag, m)
		}
	}
}

func SubLogFn(v glog.Level, log LogFunction, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(v) {
			m := fmt.Sprintf(format, a...)
			log("%s %s", tag, m)
		}
	}
}
