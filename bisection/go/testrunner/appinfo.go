package testrunner

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"gopkg.in/ini.v1"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
	"go.buildbisect.org/infra/go/util"
)

// APP_INI is the file of a build describing the application.
const APP_INI = "application.ini"

// MAX_APP_INI_SIZE bounds the bytes read from APP_INI.
const MAX_APP_INI_SIZE = 64 * 1024

// ErrNoAppInfo is returned when a build file carries no APP_INI.
var ErrNoAppInfo = errors.New("no application info")

// AppInfo is what a build says about itself.
type AppInfo struct {
	Changeset string
	RepoURL   string
	Version   string
}

// ReadAppInfo reads the APP_INI of a zip, tar.bz2 or tar.gz build archive.
func ReadAppInfo(buildFile string) (AppInfo, error) {
	var data []byte
	var err error
	switch {
	case strings.HasSuffix(buildFile, ".zip"):
		data, err = appIniFromZip(buildFile)
	case strings.HasSuffix(buildFile, ".tar.bz2"):
		data, err = appIniFromTar(buildFile, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	case strings.HasSuffix(buildFile, ".tar.gz"), strings.HasSuffix(buildFile, ".tgz"):
		data, err = appIniFromTar(buildFile, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
	default:
		return AppInfo{}, skerr.Wrapf(ErrNoAppInfo, "unsupported archive %s", path.Base(buildFile))
	}
	if err != nil {
		return AppInfo{}, err
	}
	return parseAppIni(data)
}

func parseAppIni(data []byte) (AppInfo, error) {
	f, err := ini.Load(data)
	if err != nil {
		return AppInfo{}, skerr.Wrapf(err, "parsing %s", APP_INI)
	}
	app := f.Section("App")
	return AppInfo{
		Changeset: app.Key("SourceStamp").String(),
		RepoURL:   app.Key("SourceRepository").String(),
		Version:   app.Key("Version").String(),
	}, nil
}

func isAppIni(name string) bool {
	return path.Base(name) == APP_INI
}

func appIniFromZip(buildFile string) ([]byte, error) {
	r, err := zip.OpenReader(buildFile)
	if err != nil {
		return nil, skerr.Wrapf(err, "opening %s", buildFile)
	}
	defer util.Close(r)
	for _, f := range r.File {
		if !isAppIni(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		defer util.Close(rc)
		return readAppIni(rc)
	}
	return nil, skerr.Wrapf(ErrNoAppInfo, "%s", buildFile)
}

func appIniFromTar(buildFile string, decompress func(io.Reader) (io.Reader, error)) ([]byte, error) {
	f, err := os.Open(buildFile)
	if err != nil {
		return nil, skerr.Wrapf(err, "opening %s", buildFile)
	}
	defer util.Close(f)
	dr, err := decompress(f)
	if err != nil {
		return nil, skerr.Wrapf(err, "decompressing %s", buildFile)
	}
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, skerr.Wrapf(ErrNoAppInfo, "%s", buildFile)
		} else if err != nil {
			return nil, skerr.Wrapf(err, "reading %s", buildFile)
		}
		if hdr.Typeflag == tar.TypeReg && isAppIni(hdr.Name) {
			return readAppIni(tr)
		}
	}
}

func readAppIni(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MAX_APP_INI_SIZE))
	if err != nil {
		return nil, skerr.Wrapf(err, "reading %s", APP_INI)
	}
	return data, nil
}

// updateAppInfo back-fills info from its build file. Builds without
// application info are left as they are.
func updateAppInfo(info *buildinfo.BuildInfo) {
	if info.BuildFile == "" {
		return
	}
	app, err := ReadAppInfo(info.BuildFile)
	if errors.Is(err, ErrNoAppInfo) || errors.Is(err, os.ErrNotExist) {
		sklog.Debugf("No application info in %s", info.BuildFile)
		return
	} else if err != nil {
		sklog.Warningf("Unable to read the application info of %s: %s", info, err)
		return
	}
	info.UpdateFromAppInfo(app.Changeset, app.RepoURL, app.Version)
}
