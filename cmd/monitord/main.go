package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/RoanBrand/monitortcp"
	"github.com/RoanBrand/monitortcp/internal/config"
	"github.com/google/gops/agent"
	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
)

type program struct {
	server     *monitortcp.Server
	configFlag string
	execDir    string
}

func (p *program) Start(s service.Service) error {
	var c config.Config
	if p.configFlag != "" {
		if err := c.LoadFromFile(p.configFlag); err != nil {
			return err
		}
		log.Infoln("Using config file:", p.configFlag)
	} else if toTry, ok := p.findConfig(); ok {
		if err := c.LoadFromFile(toTry); err != nil {
			return err
		}
		log.Infoln("Using config file:", toTry)
	} else {
		log.Infoln("No config file specified or found. Using defaults.")
	}

	srv, err := monitortcp.New(c, monitortcp.Resources{})
	if err != nil {
		return err
	}
	p.server = srv

	if addr := srv.Debug.GopsAddress; addr != "" {
		if err := agent.Listen(agent.Options{Addr: addr}); err != nil {
			log.WithError(err).Error("failed to start gops agent")
		} else {
			log.WithField("address", addr).Info("gops agent listening")
		}
	}

	go func() {
		if err := p.server.Run(); err != nil {
			log.Fatal(err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.server != nil {
		p.server.Shutdown()
	}
	agent.Close()
	return nil
}

func (p *program) findConfig() (string, bool) {
	for _, name := range []string{"config.toml", "config.json"} {
		toTry := filepath.Join(p.execDir, name)
		if fileExists(toTry) {
			return toTry, true
		}
	}
	return "", false
}

func main() {
	svcFlag := flag.String("service", "", "Control the system service.")
	cnfFlag := flag.String("c", "", "Path of config file (.json or .toml).")
	flag.Parse()

	ePath, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}
	eDir, _ := filepath.Split(ePath)

	// Set defaults before config override.
	if service.Interactive() {
		log.SetLevel(log.DebugLevel)
	} else {
		f, err := os.OpenFile(filepath.Join(eDir, "monitord.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal(err)
		}
		log.SetOutput(f)
	}

	prg := program{configFlag: *cnfFlag, execDir: eDir}
	svcConfig := service.Config{
		Name:        "monitord",
		DisplayName: "monitor-tcp server",
		Description: "Command and control server for the FPGA monitor board.",
	}

	s, err := service.New(&prg, &svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	if len(*svcFlag) != 0 {
		err := service.Control(s, *svcFlag)
		if err != nil {
			log.Printf("Valid actions: %q\n", service.ControlAction)
			log.Fatal(err)
		}
		return
	}

	err = s.Run()
	if err != nil {
		log.Fatal(err)
	}
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
