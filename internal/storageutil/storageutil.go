package storageutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/pierrec/lz4/v4"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrObjectNotFound indicates an object was not found.
var ErrObjectNotFound = errors.New("object not found")

const timeout = 5 * time.Second

// CompressedWrite compresses and writes data to the bucket. It returns the
// size of the stored object.
func CompressedWrite(ctx context.Context, b *blob.Bucket, objectName string, d interface{}) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	_ = zw.Apply(lz4.CompressionLevelOption(lz4.Level9))
	err := json.NewEncoder(zw).Encode(d)
	if err != nil {
		return 0, err
	}
	err = zw.Close()
	if err != nil {
		return 0, err
	}
	err = b.WriteAll(ctx, objectName, buf.Bytes(), &blob.WriterOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return 0, err
	}
	return int64(buf.Len()), nil
}

// ReadCompressed reads and decompresses an object. If the object doesn't
// exist, it returns ErrObjectNotFound.
func ReadCompressed(ctx context.Context, b *blob.Bucket, objectName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r, err := b.NewReader(ctx, objectName, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(lz4.NewReader(r))
}
