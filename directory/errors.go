package directory

import "github.com/akutuzov/sfvfs/internal/sfvfserr"

func dupNameErr(name string) error {
	return sfvfserr.New(sfvfserr.InvalidState, "name %q already exists", name)
}

func notEmptyErr(address int32) error {
	return sfvfserr.New(sfvfserr.InvalidState, "directory %d is not empty", address)
}
