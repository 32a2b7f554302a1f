package security

import (
	"crypto/x509"
	"os"

	"github.com/brickingsoft/errors"
)

// LoadTrustRoots
// 加载信任根。
//
// 不传文件时使用系统证书池；否则只信任给定 PEM 文件中的证书。
func LoadTrustRoots(files ...string) (pool *x509.CertPool, err error) {
	if len(files) == 0 {
		if pool, err = x509.SystemCertPool(); err != nil {
			err = errors.From(
				ErrNoTrustRoots,
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpTrustRoots),
				errors.WithWrap(err),
			)
		}
		return
	}
	pool = x509.NewCertPool()
	for _, file := range files {
		pem, readErr := os.ReadFile(file)
		if readErr != nil {
			pool = nil
			err = errors.New(
				"read ca file failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpTrustRoots),
				errors.WithMeta("file", file),
				errors.WithWrap(readErr),
			)
			return
		}
		if !pool.AppendCertsFromPEM(pem) {
			pool = nil
			err = errors.From(
				ErrNoTrustRoots,
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpTrustRoots),
				errors.WithMeta("file", file),
			)
			return
		}
	}
	return
}
