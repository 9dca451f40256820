// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command loom-host runs the host-side control plane for a
// Loom-instrumented design: a TDAQ server exposing
// /config,/init,/reset,/start,/stop,/quit, driving a host.Context over
// a Unix-socket or PCIe transport, servicing the DPI call loop in the
// background, and alerting by email when the emulator reports an
// error state.
//
// Grounded on cmd/mim-rpi/main.go's tdaq.New + CmdHandle wiring,
// cmd/eda-ctl/main.go's gomail alert pattern, and cmd/daq-boot/main.go's
// pmon + errgroup supervisor shape.
package main // import "github.com/go-lpc/loom/cmd/loom-host"

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/sbinet/pmon"
	mail "gopkg.in/gomail.v2"

	"github.com/go-lpc/loom/host"
	"github.com/go-lpc/loom/host/dpi"
	"github.com/go-lpc/loom/host/pcie"
	"github.com/go-lpc/loom/host/scan"
	"github.com/go-lpc/loom/host/socket"
	"github.com/go-lpc/loom/passes/scaninsert"
)

// procMonitor is the subset of *pmon.Monitor's API this command drives,
// kept as an interface so the zero value (no monitoring) is just nil.
type procMonitor interface {
	Run() error
	Kill() error
}

func main() {
	cmd := flags.New()

	dev := &device{
		target:      os.Getenv("LOOM_TARGET"),
		scanMapPath: os.Getenv("LOOM_SCAN_MAP"),
		dpiJSONPath: os.Getenv("LOOM_DPI_JSON"),
		doMon:       os.Getenv("LOOM_PMON") == "1",
		monFreq:     30 * time.Second,
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	log.SetPrefix("loom-host: ")
	log.SetFlags(0)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

// device is the TDAQ-facing state machine wrapping the host runtime.
type device struct {
	target      string
	scanMapPath string
	dpiJSONPath string
	doMon       bool
	monFreq     time.Duration

	mu          sync.Mutex
	tr          host.Transport
	hctx        *host.Context
	svc         *dpi.Service
	scanMap     *scaninsert.Result
	mon         procMonitor
	dpiDesignID uint32
	dpiVersion  uint32

	svcCancel context.CancelFunc
	svcDone   chan struct{}
}

func (d *device) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if d.scanMapPath != "" {
		f, err := os.Open(d.scanMapPath)
		if err != nil {
			ctx.Msg.Errorf("could not open scan map %q: %+v", d.scanMapPath, err)
			return fmt.Errorf("could not open scan map %q: %w", d.scanMapPath, err)
		}
		defer f.Close()

		m, err := scaninsert.ReadScanMap(f)
		if err != nil {
			ctx.Msg.Errorf("could not read scan map %q: %+v", d.scanMapPath, err)
			return fmt.Errorf("could not read scan map %q: %w", d.scanMapPath, err)
		}
		d.scanMap = m
	}

	return nil
}

func (d *device) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	tr, err := dial(d.target)
	if err != nil {
		ctx.Msg.Errorf("could not connect to %q: %+v", d.target, err)
		return fmt.Errorf("could not connect to %q: %w", d.target, err)
	}

	d.mu.Lock()
	d.tr = tr
	d.hctx = host.NewContext(tr)
	d.svc = dpi.NewService(d.hctx)
	d.mu.Unlock()

	if d.dpiJSONPath != "" {
		n, err := d.registerDPIFuncs(ctx)
		if err != nil {
			ctx.Msg.Errorf("could not register DPI functions: %+v", err)
			return err
		}

		ctx.Msg.Debugf("performing host handshake...")
		if err := d.hctx.Handshake(context.Background(), d.dpiDesignID, d.dpiVersion, n); err != nil {
			ctx.Msg.Errorf("handshake failed: %+v", err)
			return fmt.Errorf("handshake failed: %w", err)
		}
	}

	if d.doMon {
		d.startPmon(ctx)
	}

	d.startDPIService(ctx)

	return nil
}

// dpiFuncDoc mirrors loominstrument.WriteJSON's artefact shape (spec
// §6): only the fields the host runtime needs to register a callback
// and perform the handshake of spec_full §13.
type dpiFuncDoc struct {
	DesignID  uint32 `json:"design_id"`
	Version   uint32 `json:"version"`
	Functions []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Args []struct {
			Width int `json:"width"`
		} `json:"args"`
		Return *struct {
			Width int `json:"width"`
		} `json:"return"`
	} `json:"dpi_functions"`
}

// loadDPIFuncs parses the DPI JSON metadata artefact into its design
// id/version and stub functions: a real deployment replaces the
// zero-returning Callback with application-specific ones before
// /init completes. The stub still acknowledges every call, so
// unregistered behaviour never silently hangs the emulator.
func loadDPIFuncs(path string) (dpiFuncDoc, []dpi.Func, error) {
	f, err := os.Open(path)
	if err != nil {
		return dpiFuncDoc{}, nil, fmt.Errorf("could not open DPI metadata %q: %w", path, err)
	}
	defer f.Close()

	var doc dpiFuncDoc
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return dpiFuncDoc{}, nil, fmt.Errorf("could not decode DPI metadata %q: %w", path, err)
	}

	funcs := make([]dpi.Func, 0, len(doc.Functions))
	for _, jf := range doc.Functions {
		retWidth := 0
		if jf.Return != nil {
			retWidth = jf.Return.Width
		}
		funcs = append(funcs, dpi.Func{
			ID:       jf.ID,
			Name:     jf.Name,
			NArgs:    len(jf.Args),
			RetWidth: retWidth,
			Callback: func(args []uint32) uint64 { return 0 },
		})
	}
	return doc, funcs, nil
}

// registerDPIFuncs loads d.dpiJSONPath's DPI metadata, registers a
// stub callback per function on d.svc, and stashes the design
// id/version Handshake needs, returning the function count.
func (d *device) registerDPIFuncs(ctx tdaq.Context) (int, error) {
	doc, funcs, err := loadDPIFuncs(d.dpiJSONPath)
	if err != nil {
		return 0, err
	}
	d.dpiDesignID = doc.DesignID
	d.dpiVersion = doc.Version
	for _, f := range funcs {
		ctx.Msg.Infof("registering stub DPI callback for %q (id=%d)", f.Name, f.ID)
		d.svc.Register(f)
	}
	return len(funcs), nil
}

func (d *device) startPmon(ctx tdaq.Context) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		ctx.Msg.Errorf("could not start pmon: %+v", err)
		return
	}
	p.Freq = d.monFreq
	p.W = os.Stdout
	d.mon = p
	go func() {
		if err := p.Run(); err != nil {
			ctx.Msg.Errorf("pmon stopped: %+v", err)
		}
	}()
}

func (d *device) startDPIService(ctx tdaq.Context) {
	svcCtx, cancel := context.WithCancel(context.Background())
	d.svcCancel = cancel
	d.svcDone = make(chan struct{})

	go func() {
		defer close(d.svcDone)
		code, err := d.svc.Run(svcCtx, dpi.RunOptions{})
		if err != nil {
			ctx.Msg.Errorf("DPI service loop failed: %+v", err)
			d.alertMail(fmt.Sprintf("DPI service loop failed: %+v", err))
			return
		}
		ctx.Msg.Infof("DPI service loop exited: %v", code)
		if code == dpi.ExitEmuError {
			d.alertMail(fmt.Sprintf("emulator reported an error state (design=%q)", d.target))
		}
	}()
}

func (d *device) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	if err := d.hctx.Reset(context.Background()); err != nil {
		return fmt.Errorf("could not reset emulator: %w", err)
	}

	if d.scanMap == nil {
		return nil
	}

	img, err := scan.BuildInitialImage(context.Background(), d.scanMap, d.svc.CallByName)
	if err != nil {
		ctx.Msg.Errorf("could not build initial scan image: %+v", err)
		return fmt.Errorf("could not build initial scan image: %w", err)
	}
	if err := scan.Restore(context.Background(), d.hctx, img); err != nil {
		ctx.Msg.Errorf("could not restore initial scan image: %+v", err)
		return fmt.Errorf("could not restore initial scan image: %w", err)
	}

	return nil
}

func (d *device) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return d.hctx.Start(context.Background())
}

func (d *device) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return d.hctx.Stop(context.Background())
}

func (d *device) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	if d.svcCancel != nil {
		d.svcCancel()
		<-d.svcDone
	}
	if d.mon != nil {
		if err := d.mon.Kill(); err != nil {
			ctx.Msg.Errorf("could not stop pmon: %+v", err)
		}
	}
	if d.hctx != nil {
		return d.hctx.Close()
	}
	return nil
}

// dial connects to target, choosing the PCIe transport for a BDF or
// sysfs/char-device path and the Unix-socket transport otherwise.
func dial(target string) (host.Transport, error) {
	switch {
	case strings.HasPrefix(target, "/dev/") || strings.HasPrefix(target, "/sys/") || strings.Contains(target, ":"):
		return pcie.Open(target)
	default:
		return socket.Dial(target)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

// alertMail sends an SMTP alert, mirroring cmd/eda-ctl/main.go's
// alertMail (same env-var-configured dialer pattern).
func (d *device) alertMail(body string) {
	if alertMailUsr == "" || alertMailPwd == "" || alertMailSrv == "" || alertMailPort == 0 || len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[loom-host] alert: %s", d.target))
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	if err := dial.DialAndSend(msg); err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
