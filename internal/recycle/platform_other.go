//go:build !linux

package recycle

import "os"

func capturePlatformMetadata(string, os.FileInfo, *Entry, Config) error { return nil }

func restorePlatformMetadata(string, *Entry) error { return nil }

func checkOwner(string, os.FileInfo) error { return nil }

func adoptUserRoot(string, string) error { return nil }
