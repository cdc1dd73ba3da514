package envelope

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
)

const DefaultAWSRegion = "us-west-2"

type (
	AWSKMSOptions struct {
		// KeyID is the ARN, alias or ID of the KMS key.
		KeyID  string `mapstructure:"key_id"`
		Region string `mapstructure:"region"`
	}

	// AWSKMSProvider has AWS KMS generate and decrypt AES-256 data keys.
	AWSKMSProvider struct {
		client kmsiface.KMSAPI
		keyID  string
	}
)

func NewAWSKMSProvider(client kmsiface.KMSAPI, options AWSKMSOptions) *AWSKMSProvider {
	return &AWSKMSProvider{
		client: client,
		keyID:  options.KeyID,
	}
}

// NewAWSKMSClient builds a client from the default credential chain.
func NewAWSKMSClient(region string) (kmsiface.KMSAPI, error) {
	if region == "" {
		region = DefaultAWSRegion
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return kms.New(sess), nil
}

func (k *AWSKMSProvider) KeyID() string {
	return k.keyID
}

func (k *AWSKMSProvider) GenerateDataKey(ctx context.Context, keyCtx Context) (*DataKey, error) {
	result, err := k.client.GenerateDataKeyWithContext(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(k.keyID),
		KeySpec:           aws.String(kms.DataKeySpecAes256),
		EncryptionContext: aws.StringMap(keyCtx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &DataKey{
		Plaintext: result.Plaintext,
		Wrapped:   result.CiphertextBlob,
	}, nil
}

func (k *AWSKMSProvider) UnwrapDataKey(ctx context.Context, keyCtx Context, wrapped []byte) (*DataKey, error) {
	result, err := k.client.DecryptWithContext(ctx, &kms.DecryptInput{
		KeyId:             aws.String(k.keyID),
		CiphertextBlob:    wrapped,
		EncryptionContext: aws.StringMap(keyCtx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}

	return &DataKey{
		Plaintext: result.Plaintext,
		Wrapped:   wrapped,
	}, nil
}
