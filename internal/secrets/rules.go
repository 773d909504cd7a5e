package secrets

// DefaultRules returns the built-in detection rules. They target credentials
// an agent is likely to echo from a working tree: cloud keys, VCS tokens,
// connection strings and .env style assignments.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Description: "AWS Access Key ID", Severity: "high",
			Pattern: `\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`},
		{ID: "aws-secret-access-key", Description: "AWS Secret Access Key", Severity: "high",
			Pattern:  `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords: []string{"secret_access_key", "aws_secret"}},
		{ID: "private-key", Description: "PEM private key header", Severity: "high",
			Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`},
		{ID: "github-token", Description: "GitHub token", Severity: "high",
			Pattern: `\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}\b`},
		{ID: "github-fine-grained", Description: "GitHub fine-grained PAT", Severity: "high",
			Pattern: `\bgithub_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Description: "GitLab personal access token", Severity: "high",
			Pattern: `\bglpat-[A-Za-z0-9\-]{20,}`},
		{ID: "slack-token", Description: "Slack token", Severity: "high",
			Pattern: `\bxox[baprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "anthropic-api-key", Description: "Anthropic API key", Severity: "high",
			Pattern: `\bsk-ant-[A-Za-z0-9_\-]{32,}`},
		{ID: "openai-api-key", Description: "OpenAI API key", Severity: "high",
			Pattern: `\bsk-(?:proj-)?[A-Za-z0-9_\-]{40,}`},
		{ID: "google-api-key", Description: "Google API key", Severity: "high",
			Pattern: `\bAIza[A-Za-z0-9_\-]{35}\b`},
		{ID: "stripe-key", Description: "Stripe key", Severity: "high",
			Pattern: `\b(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`},
		{ID: "jwt", Description: "JSON Web Token", Severity: "medium",
			Pattern: `\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`},
		{ID: "database-url", Description: "Connection string with credentials", Severity: "high",
			Pattern: `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@[^\s]+`},
		{ID: "bearer-token", Description: "Bearer token in a header", Severity: "medium",
			Pattern:  `(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords: []string{"bearer"}},
		{ID: "generic-api-key", Description: "API key assignment", Severity: "medium",
			Pattern:  `(?i)\b(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords: []string{"api_key", "api-key", "apikey"}},
		{ID: "env-credential", Description: "Credential in env-style assignment", Severity: "medium",
			Pattern: `(?i)\b(?:[A-Z0-9_]*(?:PASSWORD|PASSWD|SECRET|TOKEN))\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`},
	}
}
