package strata

import (
	"errors"

	"github.com/oklog/ulid/v2"
)

/*
strata is a client-side cache of a hierarchical remote resource tree.

It provides two engines on top of the cached tree:
- a keyed, chunked, paced batch executor that fans out deferred remote calls
  without overwhelming a rate-limited backend
- a declarative query/projection grammar over collections of fetched records

The remote backend is reached exclusively through a collaborator-supplied
transport function (see `PerformFunc`). The library defines no endpoints,
no credentials and no persistence.
*/

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}
