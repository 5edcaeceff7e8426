package ucube_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mujykun/ucube"
)

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ucube.Config
		wantErr bool
	}{
		{
			name: "password credentials",
			cfg:  ucube.Config{Username: "fan@example.com", Password: "pw"},
		},
		{
			name: "manual token",
			cfg:  ucube.Config{Token: "bearer-token"},
		},
		{
			name:    "no credentials",
			cfg:     ucube.Config{},
			wantErr: true,
		},
		{
			name:    "both credential forms",
			cfg:     ucube.Config{Username: "fan@example.com", Password: "pw", Token: "bearer-token"},
			wantErr: true,
		},
		{
			name:    "username without password",
			cfg:     ucube.Config{Username: "fan@example.com"},
			wantErr: true,
		},
		{
			name:    "malformed base URL",
			cfg:     ucube.Config{Token: "bearer-token", BaseURL: "not a url"},
			wantErr: true,
		},
		{
			name: "explicit page size",
			cfg:  ucube.Config{Token: "bearer-token", PageSize: 50},
		},
		{
			name:    "page size beyond the service maximum",
			cfg:     ucube.Config{Token: "bearer-token", PageSize: 500},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := ucube.New(tc.cfg)

			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorContains(t, err, "invalid configuration")
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}
