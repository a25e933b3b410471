package sharedkey

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrParameterExists is returned by ParamStore.Create when a peer won the
// race to write the parameter first (spec.md §4.6 step 2/3).
var ErrParameterExists = errors.New("sharedkey: parameter already exists")

// ParamStore is the minimal key/value contract the shared-key and
// active-regions protocols need from the cluster parameter store.
// Abstracted behind an interface so the bootstrap races in manager.go are
// testable without a real AWS account.
type ParamStore interface {
	Get(ctx context.Context, name string) (value string, found bool, err error)
	Create(ctx context.Context, name, value string, secure bool) error
	Put(ctx context.Context, name, value string, secure bool) error
	Delete(ctx context.Context, name string) error
}

// SSMParamStore implements ParamStore against AWS Systems Manager
// Parameter Store, the encrypted key/value service spec.md §4.6 calls the
// "cluster parameter store".
type SSMParamStore struct {
	client *ssm.Client
}

func NewSSMParamStore(client *ssm.Client) *SSMParamStore {
	return &SSMParamStore{client: client}
}

func (s *SSMParamStore) Get(ctx context.Context, name string) (string, bool, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return aws.ToString(out.Parameter.Value), true, nil
}

func (s *SSMParamStore) Create(ctx context.Context, name, value string, secure bool) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      paramType(secure),
		Overwrite: aws.Bool(false),
	})
	if err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return ErrParameterExists
		}
		return err
	}
	return nil
}

func (s *SSMParamStore) Put(ctx context.Context, name, value string, secure bool) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      paramType(secure),
		Overwrite: aws.Bool(true),
	})
	return err
}

func (s *SSMParamStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{Name: aws.String(name)})
	var notFound *ssmtypes.ParameterNotFound
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

func paramType(secure bool) ssmtypes.ParameterType {
	if secure {
		return ssmtypes.ParameterTypeSecureString
	}
	return ssmtypes.ParameterTypeString
}
