package envelope

import (
	"context"
	"fmt"
	"strings"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
)

const dataKeySize = 32

type (
	GCPKMSOptions struct {
		// KeyName format: projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}
		KeyName string `mapstructure:"key_name"`
	}

	// GCPKMSClient is the part of the Cloud KMS client the provider calls.
	GCPKMSClient interface {
		GenerateRandomBytes(ctx context.Context, req *kmspb.GenerateRandomBytesRequest, opts ...gax.CallOption) (*kmspb.GenerateRandomBytesResponse, error)
		Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
		Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
	}

	// GCPKMSProvider draws data keys from the Cloud KMS HSM random source
	// and wraps them with a symmetric KMS key.
	GCPKMSProvider struct {
		client  GCPKMSClient
		keyName string
	}
)

func NewGCPKMSProvider(client GCPKMSClient, options GCPKMSOptions) *GCPKMSProvider {
	return &GCPKMSProvider{
		client:  client,
		keyName: options.KeyName,
	}
}

// NewGCPKMSClient builds a client from application default credentials.
func NewGCPKMSClient(ctx context.Context) (*kms.KeyManagementClient, error) {
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcp kms client: %w", err)
	}
	return client, nil
}

func (g *GCPKMSProvider) KeyID() string {
	return g.keyName
}

func (g *GCPKMSProvider) GenerateDataKey(ctx context.Context, keyCtx Context) (*DataKey, error) {
	random, err := g.client.GenerateRandomBytes(ctx, &kmspb.GenerateRandomBytesRequest{
		Location:        locationOf(g.keyName),
		LengthBytes:     dataKeySize,
		ProtectionLevel: kmspb.ProtectionLevel_HSM,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encrypted, err := g.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                        g.keyName,
		Plaintext:                   random.Data,
		AdditionalAuthenticatedData: keyCtx.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt data key: %w", err)
	}

	return &DataKey{
		Plaintext: random.Data,
		Wrapped:   encrypted.Ciphertext,
	}, nil
}

func (g *GCPKMSProvider) UnwrapDataKey(ctx context.Context, keyCtx Context, wrapped []byte) (*DataKey, error) {
	resp, err := g.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                        g.keyName,
		Ciphertext:                  wrapped,
		AdditionalAuthenticatedData: keyCtx.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}

	return &DataKey{
		Plaintext: resp.Plaintext,
		Wrapped:   wrapped,
	}, nil
}

// locationOf extracts projects/{project}/locations/{location} from a key name.
func locationOf(keyName string) string {
	parts := strings.Split(keyName, "/")
	var project, location string
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "projects":
			project = parts[i+1]
		case "locations":
			location = parts[i+1]
		}
	}

	if project == "" || location == "" {
		return "projects/default-project/locations/global"
	}
	return fmt.Sprintf("projects/%s/locations/%s", project, location)
}
