// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize is the default maximum size of a CUE document (5MB).
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

type (
	checkOptions struct {
		maxFileSize int64
		filename    string
		partial     bool
	}

	// Option configures how a document is checked.
	Option func(*checkOptions)
)

// WithMaxFileSize sets the maximum allowed document size.
func WithMaxFileSize(size int64) Option {
	return func(o *checkOptions) { o.maxFileSize = size }
}

// WithFilename sets the filename reported in error messages.
func WithFilename(name string) Option {
	return func(o *checkOptions) { o.filename = name }
}

// Partial accepts documents that leave schema fields unset.
func Partial() Option {
	return func(o *checkOptions) { o.partial = true }
}

func newCheckOptions(opts []Option) checkOptions {
	o := checkOptions{maxFileSize: DefaultMaxFileSize, filename: "<input>"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
