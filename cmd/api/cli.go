package main

// CLI 定义命令行参数。
type CLI struct {
	Config  string `short:"c" type:"path" help:"Config file path (YAML or JSON)"`
	Addr    string `help:"Listen address, overrides server.addr"`
	EnvFile string `name:"env-file" default:".env" help:"Dotenv file loaded before reading the environment"`
	Version bool   `help:"Print version and exit"`
}

// overrides maps explicit flags onto config keys.
func (c CLI) overrides() map[string]any {
	values := make(map[string]any)
	if c.Addr != "" {
		values["server.addr"] = c.Addr
	}
	return values
}
