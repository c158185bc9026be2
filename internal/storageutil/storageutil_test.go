package storageutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/google/uuid"
	"github.com/phayes/freeport"
	"github.com/pierrec/lz4/v4"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcp"

	gojson "github.com/goccy/go-json"
	jsoniter "github.com/json-iterator/go"
)

const bucketName = "profiles"

var (
	gcsServer      *fakestorage.Server
	gcsBucket      *blob.Bucket
	fileBlobBucket *blob.Bucket
)

type Profile struct {
	Samples []int `json:"samples"`
	Frames  []int `json:"frames"`
}

func TestMain(m *testing.M) {
	port, err := freeport.GetFreePort()
	if err != nil {
		log.Fatalf("no free port found: %v", err)
	}
	publicHost := fmt.Sprintf("127.0.0.1:%d", port)
	gcsServer, err = fakestorage.NewServerWithOptions(fakestorage.Options{
		PublicHost: publicHost,
		Host:       "127.0.0.1",
		Port:       uint16(port),
		Scheme:     "http",
	})
	if err != nil {
		log.Fatalf("couldn't set up gcs server: %v", err)
	}
	os.Setenv("STORAGE_EMULATOR_HOST", publicHost)
	gcsServer.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: bucketName})

	gcsBucket, err = gcsblob.OpenBucket(context.Background(), &gcp.HTTPClient{Client: http.Client{}}, bucketName, nil)
	if err != nil {
		log.Fatalf("couldn't open the gcs bucket: %v", err)
	}

	temporaryDirectory, err := os.MkdirTemp(os.TempDir(), "vroomscope-*")
	if err != nil {
		log.Fatalf("couldn't create a temporary directory: %s", err.Error())
	}

	fileBlobBucket, err = blob.OpenBucket(context.Background(), "file://localhost/"+temporaryDirectory)
	if err != nil {
		log.Fatalf("couldn't open a local filesystem bucket: %s", err.Error())
	}

	code := m.Run()

	if err := fileBlobBucket.Close(); err != nil {
		log.Printf("couldn't close the local filesystem bucket: %s", err.Error())
	}
	if err := gcsBucket.Close(); err != nil {
		log.Printf("couldn't close the gcs bucket: %s", err.Error())
	}
	gcsServer.Stop()

	err = os.RemoveAll(temporaryDirectory)
	if err != nil {
		log.Printf("couldn't remove the temporary directory: %s", err.Error())
	}

	os.Exit(code)
}

func buckets(t *testing.T) map[string]*blob.Bucket {
	mem := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = mem.Close() })
	return map[string]*blob.Bucket{
		"memblob":  mem,
		"fileblob": fileBlobBucket,
		"gcsblob":  gcsBucket,
	}
}

func TestUploadProfile(t *testing.T) {
	ctx := context.Background()
	originalData := Profile{
		Samples: []int{1, 2, 3, 4},
		Frames:  []int{1, 2, 3, 4},
	}

	for name, bucket := range buckets(t) {
		t.Run(name, func(t *testing.T) {
			objectName := uuid.New().String()
			size, err := CompressedWrite(ctx, bucket, objectName, originalData)
			if err != nil {
				t.Fatalf("we should be able to write: %v", err)
			}
			object, err := bucket.ReadAll(ctx, objectName)
			if err != nil {
				t.Fatalf("we should be able to read the object: %v", err)
			}
			if int64(len(object)) != size {
				t.Fatalf("expected %d bytes, got %d", size, len(object))
			}
			r := lz4.NewReader(bytes.NewReader(object))
			uncompressedData, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("we should be able to uncompress the data: %v", err)
			}
			b, err := json.Marshal(originalData)
			if err != nil {
				t.Fatalf("we should be able to marshal this: %v", err)
			}
			if !bytes.Equal(b, bytes.TrimSpace(uncompressedData)) {
				t.Fatal("data should be identical")
			}
		})
	}
}

func TestDownloadProfile(t *testing.T) {
	ctx := context.Background()
	originalData := []byte(`{"samples":[1,2,3,4],"frames":[1,2,3,4]}`)

	var compressedData bytes.Buffer
	w := lz4.NewWriter(&compressedData)
	_, _ = w.Write(originalData)
	err := w.Close()
	if err != nil {
		t.Fatalf("we should be able to close the writer: %v", err)
	}

	for name, bucket := range buckets(t) {
		t.Run(name, func(t *testing.T) {
			objectName := uuid.New().String()
			if err := bucket.WriteAll(ctx, objectName, compressedData.Bytes(), nil); err != nil {
				t.Fatalf("we should be able to write an object: %v", err)
			}

			data, err := ReadCompressed(ctx, bucket, objectName)
			if err != nil {
				t.Fatalf("we should be able to read the object: %v", err)
			}
			var profile Profile
			if err := json.Unmarshal(data, &profile); err != nil {
				t.Fatalf("we should be able to unmarshal the object: %v", err)
			}

			uncompressedData, err := json.Marshal(profile)
			if err != nil {
				t.Fatalf("we should be able to marshal back to JSON: %v", err)
			}
			if !bytes.Equal(originalData, uncompressedData) {
				t.Fatalf("data should be identical: %v %v", string(originalData), string(uncompressedData))
			}
		})
	}
}

func TestObjectNotFound(t *testing.T) {
	for name, bucket := range buckets(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCompressed(context.Background(), bucket, uuid.New().String())
			if !errors.Is(err, ErrObjectNotFound) {
				t.Fatalf("expected ErrObjectNotFound, got %v", err)
			}
		})
	}
}

func TestCompressedWriteIsReadableFromGCS(t *testing.T) {
	ctx := context.Background()
	objectName := uuid.New().String()
	if _, err := CompressedWrite(ctx, gcsBucket, objectName, Profile{Samples: []int{1}}); err != nil {
		t.Fatalf("we should be able to write: %v", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		t.Fatalf("we should be able to create a client: %v", err)
	}
	defer storageClient.Close()
	or, err := storageClient.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		t.Fatalf("we should be able to read the object: %v", err)
	}
	defer or.Close()
	if or.Attrs.ContentType != "application/json" {
		t.Fatalf("expected application/json, got %q", or.Attrs.ContentType)
	}
	uncompressedData, err := io.ReadAll(lz4.NewReader(or))
	if err != nil {
		t.Fatalf("we should be able to uncompress the data: %v", err)
	}
	if got := string(bytes.TrimSpace(uncompressedData)); got != `{"samples":[1],"frames":null}` {
		t.Fatalf("unexpected object content: %s", got)
	}

	object, err := gcsServer.GetObject(bucketName, objectName)
	if err != nil {
		t.Fatalf("the server should have the object: %v", err)
	}
	if len(object.Content) == 0 {
		t.Fatal("the stored object should not be empty")
	}
}

func TestReadWorker(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	names := make([]string, 3)
	for i := range names {
		names[i] = uuid.New().String()
		if _, err := CompressedWrite(ctx, bucket, names[i], Profile{Samples: []int{i}}); err != nil {
			t.Fatalf("we should be able to write: %v", err)
		}
	}
	names = append(names, "missing")

	jobs := make(chan ReadJob, len(names))
	results := make(chan ReadJobResult, len(names))
	for i := 0; i < 2; i++ {
		go ReadWorker(jobs)
	}
	for i, name := range names {
		jobs <- ReadJob{Ctx: ctx, Storage: bucket, ObjectName: name, Index: i, Result: results}
	}
	close(jobs)

	got := make([]string, len(names))
	for range names {
		res := <-results
		if res.Err != nil {
			got[res.Index] = res.Err.Error()
			continue
		}
		var p Profile
		if err := json.Unmarshal(res.Data, &p); err != nil {
			t.Fatalf("we should be able to unmarshal: %v", err)
		}
		got[res.Index] = fmt.Sprint(p.Samples)
	}

	want := []string{"[0]", "[1]", "[2]", ErrObjectNotFound.Error()}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func benchmarkDocument() []byte {
	p := Profile{}
	for i := 0; i < 10000; i++ {
		p.Samples = append(p.Samples, i%100)
		p.Frames = append(p.Frames, i)
	}
	b, _ := json.Marshal(p)
	return b
}

func BenchmarkGoJSON(b *testing.B) {
	b.ReportAllocs()
	testProfile := benchmarkDocument()
	for i := 0; i < b.N; i++ {
		var result Profile
		if err := gojson.Unmarshal(testProfile, &result); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkJsonIterator(b *testing.B) {
	b.ReportAllocs()
	testProfile := benchmarkDocument()
	for n := 0; n < b.N; n++ {
		var result Profile
		if err := jsoniter.Unmarshal(testProfile, &result); err != nil {
			b.Fatal(err)
		}
	}
}
