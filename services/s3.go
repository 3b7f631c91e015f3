package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "tryonapi/config"
)

type AWSServiceProvider interface {
	GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error)
}

type AWSService struct {
	S3PresignClient *s3.PresignClient
}

// InitPresignClient points the S3 SDK at the Cloudflare R2 account endpoint.
func (awsService *AWSService) InitPresignClient(ctx context.Context, r2 appconfig.R2Config) error {
	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID),
		}, nil
	})
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKeyID, r2.AccessKeySecret, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	awsService.S3PresignClient = s3.NewPresignClient(s3.NewFromConfig(cfg))
	return nil
}

func (awsService *AWSService) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	presignedGetRequest, err := awsService.S3PresignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(fileKey),
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	return presignedGetRequest.URL, nil
}

// R2AssetStore serves assets from a bucket prefix. Objects are read through
// short-lived presigned URLs so the same HTTP client as remote images is used.
type R2AssetStore struct {
	AWS        AWSServiceProvider
	Bucket     string
	Prefix     string
	HTTPClient *http.Client
}

func (s *R2AssetStore) ReadAsset(ctx context.Context, relPath string) ([]byte, error) {
	key := path.Join(s.Prefix, relPath)
	url, err := s.AWS.GetPresignedR2FileReadURL(ctx, s.Bucket, key)
	if err != nil {
		return nil, err
	}
	log.Printf("[Assets] Reading %s from bucket %s", key, s.Bucket)
	data, _, err := ReadFileFromUrl(ctx, s.HTTPClient, url, MaxImageSize)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
		}
		return nil, err
	}
	return data, nil
}
