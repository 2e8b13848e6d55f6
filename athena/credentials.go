package athena

import (
	"github.com/aws/aws-sdk-go/aws/credentials"
)

// credentialsFor returns the credential chain used by New: the
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN environment
// variables first, then the named shared-config profile. Without a profile it
// returns nil and the SDK default chain applies.
func credentialsFor(profile string) *credentials.Credentials {
	if profile == "" {
		return nil
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvProvider{},
		&credentials.SharedCredentialsProvider{Profile: profile},
	})
}
