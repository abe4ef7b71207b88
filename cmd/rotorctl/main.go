// Command rotorctl is an interactive console for a rot2proG controller.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/w1xm/rot2prog_interface/rot2prog"
	"github.com/w1xm/rot2prog_interface/rotator"
)

var (
	device      = flag.String("serial", "/dev/ttyUSB0", "serial device connected to the controller")
	readTimeout = flag.Duration("read_timeout", 0, "serial read timeout (0 = library default)")
	settleDelay = flag.Duration("settle_delay", 0, "pause after a set command (0 = library default)")
)

type command struct {
	help string
	run  func(r *rot2prog.Rotator, in *bufio.Scanner) error
}

// commands is assigned in init so runHelp can list the table it belongs to.
var commands map[string]command

var errExit = errors.New("exit")

func init() {
	commands = map[string]command{
		"status":     {"read the current position", runStatus},
		"stop":       {"halt motion and report where the rotor stopped", runStop},
		"set":        {"drive to a new position", runSet},
		"dev":        {"show the controller and serial device in use", runDev},
		"device":     {"alias for dev", runDev},
		"new device": {"switch to a different serial device", runNew},
		"clear":      {"clear the screen", runClear},
		"help":       {"show this message", runHelp},
		"exit":       {"disconnect and quit", runExit},
	}
}

func main() {
	flag.Parse()
	r, err := rot2prog.Connect(*device, rot2prog.Config{
		ReadTimeout: *readTimeout,
		SettleDelay: *settleDelay,
	})
	if err != nil {
		log.Fatalf("connecting to %s: %v", *device, err)
	}
	defer r.Close()
	fmt.Printf("connected to %s (pulse %d); try help\n", r.DevicePath(), r.Pulse())
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		line := strings.ToLower(strings.TrimSpace(in.Text()))
		if line == "" {
			continue
		}
		cmd, ok := commands[line]
		if !ok {
			fmt.Printf("unknown command %q; try help\n", line)
			continue
		}
		if err := cmd.run(r, in); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			fmt.Printf("error: %v\n", err)
		}
	}
	if err := in.Err(); err != nil {
		log.Fatal(err)
	}
}

func printStatus(status rotator.Status) {
	fmt.Printf("azimuth %.1f  elevation %.1f  (pulse %d)\n", status.AzPos, status.ElPos, status.Pulse)
}

// promptFloat reads one line and parses it. A closed input stream quits
// the program rather than looping on EOF.
func promptFloat(in *bufio.Scanner, prompt string) (float64, error) {
	fmt.Print(prompt)
	if !in.Scan() {
		return 0, errExit
	}
	return strconv.ParseFloat(strings.TrimSpace(in.Text()), 64)
}

func runStatus(r *rot2prog.Rotator, _ *bufio.Scanner) error {
	status, err := r.Status()
	if err != nil {
		return err
	}
	printStatus(status)
	return nil
}

func runStop(r *rot2prog.Rotator, _ *bufio.Scanner) error {
	status, err := r.Stop()
	if err != nil {
		return err
	}
	printStatus(status)
	return nil
}

func runSet(r *rot2prog.Rotator, in *bufio.Scanner) error {
	az, err := promptFloat(in, fmt.Sprintf("azimuth [%g to %g]: ", rot2prog.MinAz, rot2prog.MaxAz))
	if err != nil {
		return err
	}
	el, err := promptFloat(in, fmt.Sprintf("elevation [%g to %g]: ", rot2prog.MinEl, rot2prog.MaxEl))
	if err != nil {
		return err
	}
	return r.SetPosition(az, el)
}

func runDev(r *rot2prog.Rotator, _ *bufio.Scanner) error {
	fmt.Println("controller: SPID Elektronik rot2proG")
	fmt.Printf("device: %s\n", r.DevicePath())
	fmt.Println("protocol: SPID")
	return nil
}

func runNew(r *rot2prog.Rotator, in *bufio.Scanner) error {
	fmt.Print("device path: ")
	if !in.Scan() {
		return errExit
	}
	path := strings.TrimSpace(in.Text())
	if err := r.SetDevicePath(path); err != nil {
		fmt.Printf("keeping %s: %v\n", r.DevicePath(), err)
		return nil
	}
	fmt.Printf("connected to %s (pulse %d)\n", path, r.Pulse())
	return nil
}

func runClear(*rot2prog.Rotator, *bufio.Scanner) error {
	fmt.Print("\x1b[2J\x1b[H")
	return nil
}

func runHelp(*rot2prog.Rotator, *bufio.Scanner) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-12s %s\n", name, commands[name].help)
	}
	fmt.Print(protocolNotes)
	return nil
}

func runExit(*rot2prog.Rotator, *bufio.Scanner) error {
	return errExit
}

const protocolNotes = `
The controller speaks the SPID protocol at 460800 baud and must be in
automated mode. Status and stop exchanges report the position the
controller last measured. A set command gets no reply; the session
pauses briefly after sending one so the controller can latch the target
before the next exchange. Positions resolve to 1/pulse degrees, where
pulse is reported by the controller itself in every response.
`
