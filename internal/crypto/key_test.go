package crypto

// staticKey is a Key over fixed bytes.
type staticKey []byte

func (k staticKey) WithKey(fn func(key []byte) error) error {
	return fn(k)
}
