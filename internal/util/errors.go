package util

import "errors"

var (
	ErrInvalidSource     = errors.New("invalid or unsupported paper source")
	ErrFetchTimeout      = errors.New("paper fetch timed out")
	ErrNoExtractableText = errors.New("no extractable text found in PDF")

	ErrConfiguration      = errors.New("invalid chunking configuration")
	ErrIndexBuild         = errors.New("index build failed")
	ErrCollectionNotFound = errors.New("vector collection not found")
	ErrSynthesis          = errors.New("answer synthesis failed")
)
