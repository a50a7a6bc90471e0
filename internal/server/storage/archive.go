package storage

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/libsync/internal/common"
)

type archiveSource interface {
	ListAll(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// archiveReader is the consumer end of a zip being produced in the
// background. Closing it cancels the producer and any in-flight object read.
type archiveReader struct {
	*io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
}

func (a *archiveReader) Close() error {
	a.cancel()
	err := a.PipeReader.Close()
	<-a.done
	return err
}

// NewArchiveStream starts zipping every object under prefix into the
// returned reader. Entries are named relative to prefix. Memory use is
// bounded by one object's copy buffer. Cancelling ctx (a disconnected
// client) aborts the producer and surfaces ctx.Err() to the reader.
func NewArchiveStream(ctx context.Context, src archiveSource, prefix string) io.ReadCloser {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer cancel()
		pw.CloseWithError(writeArchive(ctx, pw, src, prefix))
	}()

	return &archiveReader{PipeReader: pr, cancel: cancel, done: done}
}

func writeArchive(ctx context.Context, w io.Writer, src archiveSource, prefix string) error {
	objects, err := src.ListAll(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}

	zw := zip.NewWriter(w)
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || IsMarker(name) {
			continue
		}

		body, err := src.Get(ctx, obj.Key)
		if errors.Is(err, common.ErrorNotFound) {
			// removed between listing and reading
			continue
		}
		if err != nil {
			return err
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: obj.LastModified,
		})
		if err != nil {
			body.Close()
			return err
		}

		_, err = io.Copy(fw, body)
		body.Close()
		if err != nil {
			return fmt.Errorf("archive %s: %w", obj.Key, err)
		}
	}

	return zw.Close()
}
