package bootstrap

import (
	"crypto/sha1"
	"os"
)

// digestImage hashes the running executable's bytes with SHA1. The
// digest identifies the program image itself so a remote peer can
// verify it is running byte-identical code before being trusted with
// any settings.
func digestImage() (magic [sha1.Size]byte, image []byte, err error) {
	path, err := os.Executable()
	if err != nil {
		return magic, nil, err
	}
	image, err = os.ReadFile(path)
	if err != nil {
		return magic, nil, err
	}
	magic = sha1.Sum(image)
	return magic, image, nil
}
