// Package s3 is the Amazon S3 adapter: object listing as a tabular task
// plus an object crawler driven by continuation tokens.
package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
)

// System is the system type this adapter serves
const System connector.SystemType = "s3"

// TaskListObjects lists objects under a prefix as a table
const TaskListObjects task.Type = "list_objects"

// crawlPageSize bounds one page of the object crawl
const crawlPageSize = 1000

// Client wraps the S3 API client plus the configured bucket
type Client struct {
	api    *awss3.Client
	bucket string
}

// NewClient builds an S3 client from resolved parameters
func NewClient(ctx context.Context, params credentials.Params) (interface{}, error) {
	bucket, err := params.Require("bucket")
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region := params.Get("region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey := params.Get("access_key_id"); accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(accessKey, params.Get("secret_access_key"), "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load aws config")
	}
	return &Client{api: awss3.NewFromConfig(cfg), bucket: bucket}, nil
}

// listObjects lists up to Limit objects under the target prefix
func listObjects(ctx context.Context, client interface{}, _ task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "s3 handler received wrong client type")
	}
	if p.Command == nil {
		return nil, errors.New(errors.ErrorTypeData, "list parameters are required")
	}

	input := &awss3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	if p.Command.Target != "" {
		input.Prefix = aws.String(p.Command.Target)
	}

	out, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to list objects")
	}

	rows := make([][]interface{}, 0, len(out.Contents))
	for _, obj := range out.Contents {
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		rows = append(rows, []interface{}{
			aws.ToString(obj.Key),
			size,
			aws.ToTime(obj.LastModified),
			aws.ToString(obj.ETag),
		})
	}

	return &task.Raw{Table: &task.RawTable{
		Columns: []string{"key", "size", "last_modified", "etag"},
		Rows:    rows,
		Total:   int64(len(rows)),
	}}, nil
}

// objectLister crawls the bucket with the native continuation-token
// pagination of ListObjectsV2.
type objectLister struct {
	client *Client
}

type objectEntry struct {
	key          string
	size         int64
	lastModified string
	storageClass string
}

func (l *objectLister) Category() string { return "object" }

func (l *objectLister) ListPage(ctx context.Context, cursor metasync.Cursor) ([]interface{}, metasync.Cursor, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(l.client.bucket),
		MaxKeys: aws.Int32(crawlPageSize),
	}
	if cursor != metasync.CursorStart {
		input.ContinuationToken = aws.String(string(cursor))
	}

	out, err := l.client.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, "", err
	}

	items := make([]interface{}, 0, len(out.Contents))
	for _, obj := range out.Contents {
		e := objectEntry{
			key:          aws.ToString(obj.Key),
			storageClass: string(obj.StorageClass),
		}
		if obj.Size != nil {
			e.size = *obj.Size
		}
		if obj.LastModified != nil {
			e.lastModified = task.Stringify(*obj.LastModified)
		}
		items = append(items, e)
	}

	if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
		return items, metasync.Cursor(*out.NextContinuationToken), nil
	}
	return items, "", nil
}

func (l *objectLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	e, ok := item.(objectEntry)
	if !ok {
		return "", nil, errors.New(errors.ErrorTypeData, "unexpected object item type")
	}
	return e.key, map[string]interface{}{
		"key":           e.key,
		"size":          e.size,
		"last_modified": e.lastModified,
		"storage_class": e.storageClass,
	}, nil
}

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeBucket:          "bucket",
		connector.KeyTypeRegion:          "region",
		connector.KeyTypeAccessKeyID:     "access_key_id",
		connector.KeyTypeSecretAccessKey: "secret_access_key",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskListObjects: {Handler: listObjects, Shape: task.ShapeTable},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeBucket, connector.KeyTypeAccessKeyID, connector.KeyTypeSecretAccessKey),
			connector.NewKeySet(connector.KeyTypeBucket, connector.KeyTypeRegion),
		},
		NewClient: NewClient,
		Listers: func(client interface{}) []metasync.Lister {
			c, ok := client.(*Client)
			if !ok {
				return nil
			}
			return []metasync.Lister{&objectLister{client: c}}
		},
	})
}
