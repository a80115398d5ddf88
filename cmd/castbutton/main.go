package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go2tv.app/castbutton/castmanager"
	"go2tv.app/castbutton/castprotocol"
	"go2tv.app/castbutton/devices"
	"go2tv.app/castbutton/internal/config"
	"go2tv.app/castbutton/internal/interactive"
)

var (
	version    string
	build      string
	listPtr    = flag.Bool("l", false, "List all available Chromecast devices with their model and firmware.")
	waitPtr    = flag.Int("w", 2, "Seconds to wait for device discovery before listing or connecting.")
	targetPtr  = flag.String("t", "", "Chromecast to connect to in watch mode, by list number or address.")
	watchPtr   = flag.Bool("watch", false, "Log cast state and session events instead of starting the interactive screen.")
	configPtr  = flag.String("config", "", "Path to the settings file.")
	versionPtr = flag.Bool("version", false, "Print version.")

	ErrNoCombi    = errors.New("can't combine -l with -t or -watch")
	ErrTargetMode = errors.New("-t requires -watch")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	exitCTX, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flag.Parse()

	exit, err := checkflags()
	if err != nil {
		return err
	}
	if exit {
		return nil
	}

	conf, err := config.GetAppConfig(*configPtr)
	if err != nil {
		return err
	}

	logOut, closeLog, err := openLog(conf, *watchPtr)
	if err != nil {
		return err
	}
	defer closeLog()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if conf.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	scanner := devices.NewScanner(devices.Browser(conf.Discovery), conf.QueryTimeout())

	switch {
	case *listPtr:
		return listDevices(exitCTX, scanner)
	case *watchPtr:
		return runWatch(exitCTX, conf, scanner, logOut)
	default:
		return runInteractive(exitCTX, cancel, conf, scanner, logOut)
	}
}

func providerOptions(conf *config.Config, logOut io.Writer) []castprotocol.Option {
	return []castprotocol.Option{
		castprotocol.WithVolumeStep(float32(conf.VolumeStep)),
		castprotocol.WithVolumeRate(conf.VolumeKeysPerSecond),
		castprotocol.WithLogOutput(logOut),
	}
}

func runInteractive(ctx context.Context, cancel context.CancelFunc, conf *config.Config, scanner *devices.Scanner, logOut io.Writer) error {
	s, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("castbutton interactive: %w", err)
	}

	exec := interactive.NewScreenExecutor(s)
	cc := castprotocol.NewCastContext(scanner, append(providerOptions(conf, logOut), castprotocol.WithExecutor(exec))...)
	coord := castmanager.New(cc, castmanager.WithLogOutput(logOut))

	scr := interactive.InitCastButtonScreen(s, exec, coord, cc, cancel)
	err = scr.InterInit(ctx)

	cancel()
	if sess := cc.CurrentSession(); sess != nil {
		_ = sess.Close(false)
	}
	cc.Wait()

	return err
}

func runWatch(parent context.Context, conf *config.Config, scanner *devices.Scanner, logOut io.Writer) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	exec := castprotocol.NewSerialExecutor(0)
	execCtx, stopExec := context.WithCancel(context.Background())
	defer stopExec()
	go exec.Run(execCtx)

	cc := castprotocol.NewCastContext(scanner, append(providerOptions(conf, logOut), castprotocol.WithExecutor(exec))...)
	coord := castmanager.New(cc, castmanager.WithLogOutput(logOut))

	w := newWatchListener(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}, coord)

	// The coordinator lives on the executor goroutine.
	if err := onExecutor(exec, func() error {
		if err := coord.SetUp(ctx); err != nil {
			return err
		}
		return coord.StartScanning(w, w)
	}); err != nil {
		return err
	}

	defer func() {
		_ = onExecutor(exec, func() error {
			coord.StopScanning()
			return nil
		})
		cancel()
		if sess := cc.CurrentSession(); sess != nil {
			_ = sess.Close(false)
		}
		cc.Wait()
	}()

	if *targetPtr != "" {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(*waitPtr) * time.Second):
		}

		dev, err := pickTarget(cc.Devices(), *targetPtr)
		if err != nil {
			return errors.Wrap(err, "watch target")
		}

		if err := cc.StartSession(dev); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return nil
}

func onExecutor(exec castprotocol.Executor, fn func() error) error {
	errc := make(chan error, 1)
	exec.Post(func() { errc <- fn() })
	return <-errc
}

func pickTarget(devs []devices.Device, target string) (devices.Device, error) {
	if n, err := strconv.Atoi(target); err == nil {
		return devices.DevicePicker(devs, n)
	}
	return devices.DeviceByAddr(devs, target)
}

func listDevices(ctx context.Context, scanner *devices.Scanner) error {
	if err := scanner.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to list devices")
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(time.Duration(*waitPtr) * time.Second):
	}

	devs := scanner.Devices()
	if len(devs) == 0 {
		return devices.ErrNoDeviceAvailable
	}

	fmt.Println()

	boldStart := ""
	boldEnd := ""
	if runtime.GOOS == "linux" {
		boldStart = "\033[1m"
		boldEnd = "\033[0m"
	}

	for q, d := range devs {
		fmt.Printf("%sDevice %v%s\n", boldStart, q+1, boldEnd)
		fmt.Printf("%s--------%s\n", boldStart, boldEnd)
		fmt.Printf("%sName:%s     %s\n", boldStart, boldEnd, d.Label())
		fmt.Printf("%sURL:%s      %s\n", boldStart, boldEnd, d.Addr)

		info, err := devices.FetchDeviceInfo(ctx, d.Addr)
		if err == nil {
			model := info.DeviceInfo.ModelName
			if model == "" {
				model = d.Model
			}
			fmt.Printf("%sModel:%s    %s\n", boldStart, boldEnd, model)
			fmt.Printf("%sFirmware:%s %s\n", boldStart, boldEnd, info.Firmware())
		} else if d.Model != "" {
			fmt.Printf("%sModel:%s    %s\n", boldStart, boldEnd, d.Model)
		}
		fmt.Println()
	}

	return nil
}

func openLog(conf *config.Config, watch bool) (io.Writer, func(), error) {
	if conf.LogFile != "" {
		f, err := os.OpenFile(conf.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		return f, func() { f.Close() }, nil
	}

	if watch {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}, func() {}, nil
	}

	return nil, func() {}, nil
}

func checkflags() (exit bool, err error) {
	if checkVerflag() {
		return true, nil
	}

	if err := checkLflag(); err != nil {
		return false, errors.Wrap(err, "checkflags error")
	}

	if err := checkWflag(); err != nil {
		return false, errors.Wrap(err, "checkflags error")
	}

	if err := checkTflag(); err != nil {
		return false, errors.Wrap(err, "checkflags error")
	}

	return false, nil
}

func checkVerflag() bool {
	if *versionPtr {
		fmt.Printf("castbutton Version: %s, ", version)
		fmt.Printf("Build: %s\n", build)
		return true
	}
	return false
}

func checkLflag() error {
	if *listPtr && (*targetPtr != "" || *watchPtr) {
		return ErrNoCombi
	}
	return nil
}

func checkWflag() error {
	if *waitPtr <= 0 {
		return errors.Errorf("checkWflag error: invalid wait %d", *waitPtr)
	}
	return nil
}

func checkTflag() error {
	if *targetPtr == "" {
		return nil
	}

	if !*watchPtr {
		return ErrTargetMode
	}

	if _, err := strconv.Atoi(*targetPtr); err == nil {
		return nil
	}

	target := *targetPtr
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	u, err := url.ParseRequestURI(target)
	if err != nil {
		return errors.Wrap(err, "checkTflag parse error")
	}
	if u.Host == "" {
		return errors.Errorf("checkTflag parse error: missing host in %q", *targetPtr)
	}

	return nil
}
