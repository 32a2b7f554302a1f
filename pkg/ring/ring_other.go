//go:build !linux

package ring

func newURing(Options) (Substrate, error) {
	return nil, ErrUnsupported
}

func newBlocking(Options) (Substrate, error) {
	return nil, ErrUnsupported
}
