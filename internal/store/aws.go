package store

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-logr/logr"
	"github.com/samber/do"
	"github.com/samber/lo"
)

type S3Uploader struct {
	Client *s3.Client
	Bucket string
}

func NewS3Uploader(i *do.Injector) (Uploader, error) {
	return &S3Uploader{
		Client: do.MustInvoke[*s3.Client](i),
		Bucket: do.MustInvokeNamed[string](i, "bucket"),
	}, nil
}

// Upload mirrors one object. S3 user metadata only carries US-ASCII, so values outside
// it are percent-encoded.
func (u *S3Uploader) Upload(ctx context.Context, params UploadParams) error {
	logr.FromContextOrDiscard(ctx).Info("mirroring image to s3", "bucket", u.Bucket, "key", params.Name)

	input := &s3.PutObjectInput{
		Bucket:       aws.String(u.Bucket),
		Key:          aws.String(params.Name),
		Body:         bytes.NewReader(params.Data),
		ContentType:  aws.String(params.ContentType),
		Metadata:     ObjectMetadata(params.Metadata),
		StorageClass: s3types.StorageClassIntelligentTiering,
	}
	if _, err := u.Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", u.Bucket, params.Name, err)
	}
	return nil
}

func ObjectMetadata(m map[string]string) map[string]string {
	return lo.MapValues(m, func(v, _ string) string {
		if isPrintableASCII(v) {
			return v
		}
		return url.QueryEscape(v)
	})
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

type CloudFrontInvalidator struct {
	Client       *cloudfront.Client
	Distribution string
}

func NewCloudFrontInvalidator(i *do.Injector) (Invalidator, error) {
	return &CloudFrontInvalidator{
		Client:       do.MustInvoke[*cloudfront.Client](i),
		Distribution: do.MustInvokeNamed[string](i, "distribution"),
	}, nil
}

func (i *CloudFrontInvalidator) Invalidate(ctx context.Context, paths []string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("paths", paths, "distribution", i.Distribution)
	log.Info("invalidating paths in cloudfront")

	_, err := i.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(i.Distribution),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(time.Now().UTC().Format("20060102150405")),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	return err
}

// ObjectPath is the CloudFront path of an uploaded object.
func ObjectPath(name string) string {
	return path.Join("/", name)
}
