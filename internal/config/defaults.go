package config

import "github.com/michaelbrown/toolagent/internal/tools"

// DefaultServers is the ordered server list used when the config file has none.
func DefaultServers() []tools.ServerDescriptor {
	return []tools.ServerDescriptor{
		{
			Name:    "filesystem",
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "~"},
			Enabled: true,
		},
		{
			Name:    "brave-search",
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-brave-search"},
			Env:     map[string]string{"BRAVE_API_KEY": "${" + SecretBraveSearch + "}"},
			Enabled: true,
		},
		{
			Name:    "sequential-thinking",
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-sequential-thinking"},
			Enabled: true,
		},
		{
			Name:    "puppeteer",
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-puppeteer"},
			Enabled: true,
		},
		{
			Name:    "notion",
			Command: "npx",
			Args:    []string{"-y", "mcp-remote", "https://mcp.notion.com/mcp"},
			Enabled: false,
		},
		{
			Name:    "github",
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-github"},
			Env:     map[string]string{"GITHUB_PERSONAL_ACCESS_TOKEN": "${" + SecretGitHub + "}"},
			Enabled: true,
		},
	}
}

// DefaultAllowList is the set of tools the agent may use when the config file has none.
func DefaultAllowList() []string {
	return []string{
		"write_file",
		"create_directory",
		"brave_web_search",
		"puppeteer_navigate",
		"puppeteer_click",
		"puppeteer_evaluate",
		"sequentialthinking",
		"puppeteer_screenshot",
		"create_or_update_file",
		"create_repository",
	}
}
