// Package storage управляет бакетом с медиа-вложениями.
//
// Физическое удаление объектов делает lifecycle-правило бакета, а не
// worker: attachment-cleanup только помечает строки expired. Окна
// правил берутся из domain.MediaType.RetentionWindow, чтобы метаданные
// и объекты расходились не больше чем на сутки.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/shaiso/Chatplane/internal/domain"
)

// rulePrefix — префикс ID правил, которыми владеет Chatplane.
const rulePrefix = "chatplane-media-"

// Options — параметры подключения к S3-совместимому хранилищу.
type Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client создаёт клиент. Endpoint задаётся для MinIO и подобных
// (включает path-style адресацию).
func NewS3Client(ctx context.Context, opts Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// LifecycleAPI — часть *s3.Client, нужная Lifecycle.
type LifecycleAPI interface {
	GetBucketLifecycleConfiguration(ctx context.Context, in *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	PutBucketLifecycleConfiguration(ctx context.Context, in *s3.PutBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error)
}

// Lifecycle приводит правила бакета к окнам хранения медиа.
type Lifecycle struct {
	api    LifecycleAPI
	bucket string
	logger *slog.Logger
}

// NewLifecycle создаёт Lifecycle для бакета.
func NewLifecycle(api LifecycleAPI, bucket string, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{api: api, bucket: bucket, logger: logger}
}

// MediaRules возвращает правило expiration на каждый тип медиа:
// объекты лежат под префиксом "{mediaType}/".
func MediaRules() []types.LifecycleRule {
	var rules []types.LifecycleRule
	for _, mt := range domain.MediaTypes() {
		rules = append(rules, types.LifecycleRule{
			ID:     aws.String(rulePrefix + string(mt)),
			Status: types.ExpirationStatusEnabled,
			Prefix: aws.String(string(mt) + "/"),
			Expiration: &types.LifecycleExpiration{
				Days: aws.Int32(retentionDays(mt.RetentionWindow())),
			},
		})
	}
	return rules
}

// retentionDays округляет окно вверх до целых суток.
func retentionDays(window time.Duration) int32 {
	day := 24 * time.Hour
	return int32((window + day - 1) / day)
}

// Ensure записывает правила, если текущие отличаются. Чужие правила
// бакета сохраняются. Возвращает true, если конфигурация была обновлена.
func (l *Lifecycle) Ensure(ctx context.Context) (bool, error) {
	current, err := l.currentRules(ctx)
	if err != nil {
		return false, err
	}

	desired := MediaRules()
	if rulesMatch(current, desired) {
		l.logger.Debug("bucket lifecycle up to date", "bucket", l.bucket)
		return false, nil
	}

	merged := make([]types.LifecycleRule, 0, len(current)+len(desired))
	for _, r := range current {
		if !ownedRule(r) {
			merged = append(merged, r)
		}
	}
	merged = append(merged, desired...)

	_, err = l.api.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket:                 aws.String(l.bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{Rules: merged},
	})
	if err != nil {
		return false, fmt.Errorf("put lifecycle on %s: %w", l.bucket, err)
	}

	l.logger.Info("bucket lifecycle updated", "bucket", l.bucket, "rules", len(desired))
	return true, nil
}

func (l *Lifecycle) currentRules(ctx context.Context) ([]types.LifecycleRule, error) {
	out, err := l.api.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(l.bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchLifecycleConfiguration" {
			return nil, nil
		}
		return nil, fmt.Errorf("get lifecycle of %s: %w", l.bucket, err)
	}
	return out.Rules, nil
}

func ownedRule(r types.LifecycleRule) bool {
	id := aws.ToString(r.ID)
	return len(id) >= len(rulePrefix) && id[:len(rulePrefix)] == rulePrefix
}

func rulesMatch(current, desired []types.LifecycleRule) bool {
	byID := make(map[string]types.LifecycleRule)
	for _, r := range current {
		if ownedRule(r) {
			byID[aws.ToString(r.ID)] = r
		}
	}
	if len(byID) != len(desired) {
		return false
	}
	for _, want := range desired {
		got, ok := byID[aws.ToString(want.ID)]
		if !ok || got.Status != want.Status || aws.ToString(got.Prefix) != aws.ToString(want.Prefix) {
			return false
		}
		if got.Expiration == nil || aws.ToInt32(got.Expiration.Days) != aws.ToInt32(want.Expiration.Days) {
			return false
		}
	}
	return true
}
