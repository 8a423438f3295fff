package loader

import (
	"io"

	"github.com/mholt/archiver"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// discoverTar streams the members of a tar archive (one <3-digit>/<2-digit>.tar
// per root bucket, per the directory-tree layout) and emits one item per
// friendsUID.csv member found inside, without ever extracting the archive to
// disk, using mholt/archiver's streaming Reader interface.
func discoverTar(fs afero.Fs, archivePath string, out chan<- item) error {
	f, err := fs.Open(archivePath)
	if err != nil {
		return xerrors.Errorf("open %q: %w", archivePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return xerrors.Errorf("stat %q: %w", archivePath, err)
	}

	tr := archiver.NewTar()
	if err := tr.Open(f, info.Size()); err != nil {
		return xerrors.Errorf("open tar stream %q: %w", archivePath, err)
	}
	defer tr.Close()

	for {
		member, err := tr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("read tar member of %q: %w", archivePath, err)
		}

		name := member.Name()
		if member.IsDir() || !friendsFileRe.MatchString(baseName(name)) {
			member.Close()
			continue
		}

		body, readErr := io.ReadAll(member)
		member.Close()
		if readErr != nil {
			return xerrors.Errorf("read tar member %q of %q: %w", name, archivePath, readErr)
		}

		out <- item{source: archivePath + "!" + name, body: body}
	}
}

// baseName is a tiny path.Base that tolerates the backslash-free forward
// slashes tar headers always use, regardless of host OS.
func baseName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
