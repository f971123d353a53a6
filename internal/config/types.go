package config

// WorkflowConfig is the top-level configuration structure parsed from workflow YAML.
type WorkflowConfig struct {
	Workflow Workflow `yaml:"workflow"`
}

// Workflow defines the full pipeline: triggers, matrix, steps, coverage, publish.
type Workflow struct {
	Name     string          `yaml:"name"`
	Repo     string          `yaml:"repo"`
	Triggers Triggers        `yaml:"triggers"`
	Matrix   Matrix          `yaml:"matrix"`
	Defaults Defaults        `yaml:"defaults"`
	Steps    map[string]Step `yaml:"steps"`
	Coverage Coverage        `yaml:"coverage"`
	Publish  Publish         `yaml:"publish"`
}

// Triggers declares which source events start a run.
// A nil filter means the event kind does not trigger at all.
type Triggers struct {
	Push        *BranchFilter  `yaml:"push"`
	PullRequest *BranchFilter  `yaml:"pull_request"`
	Schedule    []ScheduleRule `yaml:"schedule"`
	Dispatch    bool           `yaml:"dispatch"`
}

// BranchFilter restricts push/pull_request triggers to the listed branches.
// An empty Branches list matches any branch.
type BranchFilter struct {
	Branches []string `yaml:"branches"`
}

// ScheduleRule is a single cron-based trigger.
type ScheduleRule struct {
	Cron string `yaml:"cron"`
}

// Matrix declares the axes whose cross product becomes the set of run instances.
type Matrix struct {
	OS      []string     `yaml:"os"`
	Python  []string     `yaml:"python"`
	Include []OSOverride `yaml:"include"`
}

// OSOverride carries per-os values merged into every instance for that os.
// ProvisionerVariant and ProvisionerVersion are optional; blank means the
// provisioner picks its own default.
type OSOverride struct {
	OS                 string `yaml:"os"`
	EnvironmentFile    string `yaml:"environment_file"`
	ProvisionerVariant string `yaml:"provisioner_variant"`
	ProvisionerVersion string `yaml:"provisioner_version"`
}

// Defaults holds values applied to steps and overrides that don't set their own.
type Defaults struct {
	Timeout         string `yaml:"timeout"`
	EnvironmentFile string `yaml:"environment_file"`
}

// Step defines a single command run inside an instance's workspace.
type Step struct {
	Command string `yaml:"command"`
	Parser  string `yaml:"parser"`
	Timeout string `yaml:"timeout"`
}

// Coverage configures the conversion and upload of the coverage artifact.
// Required controls whether an upload failure fails the instance; the default
// (false) treats upload as best-effort.
type Coverage struct {
	ConvertCommand string `yaml:"convert_command"`
	Artifact       string `yaml:"artifact"`
	UploadURL      string `yaml:"upload_url"`
	TokenEnv       string `yaml:"token_env"`
	Required       bool   `yaml:"required"`
}

// Publish configures the image build/push stage.
type Publish struct {
	Registry    string `yaml:"registry"`
	Image       string `yaml:"image"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
	Context     string `yaml:"context"`
	Dockerfile  string `yaml:"dockerfile"`
}

// InstanceSteps is the fixed, ordered step sequence every run instance executes.
// Coverage conversion/upload follow the test step and are configured separately.
var InstanceSteps = []string{"provision", "install", "test"}
