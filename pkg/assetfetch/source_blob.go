// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package assetfetch

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobSource reads artifacts from gocloud blob buckets.
//
// URIs name the bucket and key together:
//
//	s3://bucket/path/to/model.bin?region=eu-west-1
//	file:///srv/mirror/model.bin
//	mem://weights/model.bin
//
// For file URIs the bucket is the parent directory; for every other scheme it
// is the host, with the query string kept as bucket options. A mem bucket
// opened from its URL is always empty, so mem sources are only useful
// through Buckets.
type BlobSource struct {
	// Buckets holds already opened buckets keyed by bucket URL. They are used
	// as is and never closed by the source. Other buckets are opened per read
	// and closed together with the stream.
	Buckets map[string]*blob.Bucket
}

// Open implements Source.
func (s *BlobSource) Open(ctx context.Context, uri string) (*Stream, error) {
	bucketURL, key, err := splitBlobURI(uri)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}

	bucket, owned := s.Buckets[bucketURL], false
	if bucket == nil {
		bucket, err = blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
		}
		owned = true
	}

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		if owned {
			bucket.Close()
		}
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}

	body := &blobBody{Reader: r}
	if owned {
		body.bucket = bucket
	}
	return &Stream{Body: body, Size: r.Size()}, nil
}

type blobBody struct {
	*blob.Reader
	bucket *blob.Bucket
}

func (b *blobBody) Close() error {
	err := b.Reader.Close()
	if b.bucket != nil {
		if cerr := b.bucket.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// splitBlobURI separates a blob URI into the bucket URL understood by
// blob.OpenBucket and the object key.
func splitBlobURI(uri string) (bucketURL, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse source: %w", err)
	}
	if u.Scheme == "file" {
		dir, file := path.Split(u.Path)
		if file == "" {
			return "", "", fmt.Errorf("source %q names a directory", uri)
		}
		b := url.URL{Scheme: "file", Path: strings.TrimSuffix(dir, "/"), RawQuery: u.RawQuery}
		if b.Path == "" {
			b.Path = "/"
		}
		return b.String(), file, nil
	}

	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("source %q has no object key", uri)
	}
	b := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	return b.String(), key, nil
}
