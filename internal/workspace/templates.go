package workspace

import (
	"strings"
	"text/template"
)

// File names written into every workspace, in write order.
const (
	MainFile      = "main.tf"
	VariablesFile = "variables.tf"
	OutputsFile   = "outputs.tf"
	ProviderFile  = "provider.tf"
)

const (
	amiID        = "ami-0c02fb55956c7d316"
	instanceType = "t3.micro"
)

type templateData struct {
	ModulePath   string
	AMI          string
	InstanceType string
	InstanceName string
	DeviceID     string
	Region       string
	StateBucket  string
	LockTable    string
}

var funcs = template.FuncMap{"hcl": hclEscape}

var files = []struct {
	name string
	tmpl *template.Template
}{
	{MainFile, template.Must(template.New(MainFile).Funcs(funcs).Parse(`module "ec2" {
  source        = "{{hcl .ModulePath}}"
  ami           = "{{hcl .AMI}}"
  instance_type = "{{hcl .InstanceType}}"
  instance_name = "{{hcl .InstanceName}}"
  device_id     = "{{hcl .DeviceID}}"
}
`))},
	{VariablesFile, template.Must(template.New(VariablesFile).Parse(`variable "device_id" {
  type        = string
  description = "Unique device ID"
}

variable "instance_name" {
  type        = string
  description = "EC2 instance name"
}
`))},
	{OutputsFile, template.Must(template.New(OutputsFile).Parse(`output "ec2_instance_id" {
  value = module.ec2.instance_id
}

output "ec2_public_ip" {
  value = module.ec2.public_ip
}
`))},
	{ProviderFile, template.Must(template.New(ProviderFile).Funcs(funcs).Parse(`terraform {
  required_version = ">= 1.1.0"

  backend "s3" {
    bucket         = "{{hcl .StateBucket}}"
    key            = "state/{{hcl .DeviceID}}.tfstate"
    region         = "{{hcl .Region}}"
    dynamodb_table = "{{hcl .LockTable}}"
    encrypt        = true
  }
}

provider "aws" {
  region = "{{hcl .Region}}"
}
`))},
}

var hclReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"${", "$${",
	"%{", "%%{",
)

// hclEscape makes s safe inside a quoted HCL string. Plain identifiers pass
// through unchanged.
func hclEscape(s string) string {
	return hclReplacer.Replace(s)
}
