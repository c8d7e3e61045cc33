// Package testutil provides shared test helpers for writing configuration fixtures.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupTestConfig writes a config file with two candidates pointed at upstreamURL.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string, upstreamURL string) string {
	t.Helper()

	configContent := fmt.Sprintf(`huggingface:
  base_url: %s
  router_url: %s/v1
  token: hf_test
answer:
  max_length: 200
candidates:
  - name: primary
    provider: huggingface
    model: mistralai/Mistral-7B-Instruct-v0.2
    timeout: 2s
  - name: router
    provider: openai
    model: meta-llama/Llama-3.1-8B-Instruct
    timeout: 2s
`, upstreamURL, upstreamURL)

	configPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))
	return configPath
}
