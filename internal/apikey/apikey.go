// Package apikey gates the public API behind a shared key. The key comes
// from config directly or from SSM Parameter Store at startup.
package apikey

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/civiclab/ordinance-api/internal/xerrors"
)

const Header = "X-Api-Key"

// SSMAPI is the slice of the SSM client used to resolve the key.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// FromSSM reads the API key from an encrypted SSM parameter.
func FromSSM(ctx context.Context, client SSMAPI, param string) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", param)
	}
	key := strings.TrimSpace(*out.Parameter.Value)
	if key == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", param)
	}
	return key, nil
}

// Verifier checks presented keys in constant time. A Verifier built from
// an empty key is disabled and admits everything.
type Verifier struct {
	key []byte
}

func New(key string) *Verifier {
	return &Verifier{key: []byte(key)}
}

func (v *Verifier) Enabled() bool { return len(v.key) > 0 }

func (v *Verifier) Verify(candidate string) bool {
	if !v.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare(v.key, []byte(candidate)) == 1
}

// Middleware rejects requests without a valid X-Api-Key header. onFailure,
// if set, is called for each rejection.
func (v *Verifier) Middleware(onFailure func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !v.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Verify(r.Header.Get(Header)) {
				if onFailure != nil {
					onFailure()
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"missing or invalid api key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
