//go:build !unix

package keychain

func lockMemory([]byte) error   { return nil }
func unlockMemory([]byte) error { return nil }
