package s3src

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionetl/internal/config"
)

type fakeGetter struct {
	objects map[string]string
	gotKey  string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKey = aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	body, ok := f.objects[f.gotKey]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestObject_Open(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{objects: map[string]string{"events/2018/event_datafile_new.csv": "artist\nFu\n"}}
	o := NewWithClient(g, "events", "2018/event_datafile_new.csv")
	assert.Equal(t, "s3://events/2018/event_datafile_new.csv", o.String())

	rc, err := o.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "artist\nFu\n", string(b))
}

func TestObject_OpenMissing(t *testing.T) {
	t.Parallel()

	o := NewWithClient(&fakeGetter{}, "events", "nope.csv")
	_, err := o.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "err = %v", err)
	assert.Contains(t, err.Error(), "s3://events/nope.csv")
}

func TestNew_CustomEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	o, err := New(context.Background(), config.SourceS3{
		Bucket:   "events",
		Key:      "k.csv",
		Region:   "us-east-1",
		Endpoint: "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	c, ok := o.client.(*s3.Client)
	require.True(t, ok)
	assert.True(t, c.Options().UsePathStyle)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(c.Options().BaseEndpoint))
}
