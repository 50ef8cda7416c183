package transport

import "strings"

// buildArgs constructs the CLI argument vector. --resume must appear
// before any other flag, so it leads when set; the fixed required
// arguments follow, then the conditional per-query/config flags.
func buildArgs(cfg Config, opts QueryOptions) []string {
	var args []string

	resumeID := cfg.ResumeSessionID
	if opts.ResumeSessionID != "" {
		resumeID = opts.ResumeSessionID
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}

	args = append(args,
		"--output-format", "stream-json",
		"--verbose",
		"--print",
		"--input-format", "stream-json",
	)

	model := cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	systemPrompt := cfg.SystemPrompt
	if opts.SystemPrompt != "" {
		systemPrompt = opts.SystemPrompt
	}
	if systemPrompt != "" {
		args = append(args, "--system-prompt", systemPrompt)
	}

	allowedTools := cfg.AllowedTools
	if len(opts.AllowedTools) > 0 {
		allowedTools = opts.AllowedTools
	}
	if len(allowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(allowedTools, ","))
	}

	addDirs := cfg.AddDirs
	if len(opts.AddDirs) > 0 {
		addDirs = opts.AddDirs
	}
	for _, dir := range addDirs {
		args = append(args, "--add-dir", dir)
	}

	permissionMode := cfg.PermissionMode
	if opts.PermissionMode != "" {
		permissionMode = opts.PermissionMode
	}
	if permissionMode != "" {
		args = append(args, "--permission-mode", permissionMode)
	}

	if cfg.MCPConfigPath != "" {
		args = append(args, "--mcp-config", cfg.MCPConfigPath)
	}

	args = append(args, cfg.ExtraArgs...)
	return args
}
