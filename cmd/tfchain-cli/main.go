// Command tfchain-cli is an operator REPL over an in-process Contract
// Registry/Billing Engine: a local sandbox for exercising contract lifecycle
// and billing without a running tfchaind daemon, the same role neo-go's VM
// CLI plays for script execution.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/chzyer/readline"
	shellquote "github.com/kballard/go-shellquote"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/billing"
	"github.com/threefoldtech/tfchain-billing/pkg/contracterrors"
	"github.com/threefoldtech/tfchain-billing/pkg/events"
	"github.com/threefoldtech/tfchain-billing/pkg/iface"
	"github.com/threefoldtech/tfchain-billing/pkg/registry"
	"github.com/threefoldtech/tfchain-billing/pkg/storage"
	"github.com/threefoldtech/tfchain-billing/pkg/tfgridstate"
)

const sessionKey = "session"

// session bundles the sandbox state every command operates on.
type session struct {
	grid   *tfgridstate.State
	reg    *registry.Registry
	engine *billing.Engine
	block  uint64
}

func getSession(c *cli.Context) *session {
	return c.App.Metadata[sessionKey].(*session)
}

func newSession() (*session, error) {
	grid := tfgridstate.New()
	grid.SetMinimumBalance(1)
	grid.SetPricingPolicy(iface.PricingPolicy{ID: 1})
	grid.SetTFTPrice(40)

	bus := events.NewBus()
	reg := registry.New(storage.NewMemoryStore(), grid, bus, 10, registry.DefaultLimits, zap.NewNop())
	engine, err := billing.New(reg, grid, grid, bus, billing.DefaultConfig(), zap.NewNop())
	if err != nil {
		return nil, err
	}
	return &session{grid: grid, reg: reg, engine: engine}, nil
}

func accountOf(s string) (iface.Account, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return iface.Account{}, fmt.Errorf("invalid account %q: %w", s, err)
	}
	var a iface.Account
	if len(raw) != len(a) {
		return a, fmt.Errorf("invalid account %q: wrong length", s)
	}
	copy(a[:], raw)
	return a, nil
}

var commands = []cli.Command{
	{
		Name:      "twin",
		Usage:     "Create a twin bound to a fresh account",
		UsageText: "twin",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			var acct iface.Account
			acct[0] = byte(c.App.Metadata["nextAccount"].(int))
			c.App.Metadata["nextAccount"] = c.App.Metadata["nextAccount"].(int) + 1
			twin := s.grid.CreateTwin(acct)
			fmt.Fprintf(c.App.Writer, "twin %d account %s\n", twin, acct.String())
			return nil
		},
	},
	{
		Name:      "fund",
		Usage:     "Credit an account's free balance",
		UsageText: "fund <account> <amount>",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			args := c.Args()
			if len(args) != 2 {
				return errors.New("usage: fund <account> <amount>")
			}
			acct, err := accountOf(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			s.grid.Fund(acct, amount)
			return nil
		},
	},
	{
		Name:      "node",
		Usage:     "Register a node on a farm",
		UsageText: "node <node-id> <farm-id> <cru> <mru>",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			args := c.Args()
			if len(args) != 4 {
				return errors.New("usage: node <node-id> <farm-id> <cru> <mru>")
			}
			nodeID, _ := strconv.ParseUint(args[0], 10, 32)
			farmID, _ := strconv.ParseUint(args[1], 10, 32)
			cru, _ := strconv.ParseUint(args[2], 10, 64)
			mru, _ := strconv.ParseUint(args[3], 10, 64)
			s.grid.SetNode(iface.Node{
				ID:        iface.NodeID(nodeID),
				FarmID:    iface.FarmID(farmID),
				Resources: iface.Resources{CRU: cru, MRU: mru},
			})
			return nil
		},
	},
	{
		Name:      "farm",
		Usage:     "Register a farm owned by a twin",
		UsageText: "farm <farm-id> <twin-id>",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			args := c.Args()
			if len(args) != 2 {
				return errors.New("usage: farm <farm-id> <twin-id>")
			}
			farmID, _ := strconv.ParseUint(args[0], 10, 32)
			twinID, _ := strconv.ParseUint(args[1], 10, 32)
			s.grid.SetFarm(iface.Farm{ID: iface.FarmID(farmID), TwinID: iface.TwinID(twinID), PricingPolicyID: 1})
			return nil
		},
	},
	{
		Name:      "create",
		Usage:     "Create a deployment contract",
		UsageText: "create <account> <node-id>",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			args := c.Args()
			if len(args) != 2 {
				return errors.New("usage: create <account> <node-id>")
			}
			acct, err := accountOf(args[0])
			if err != nil {
				return err
			}
			nodeID, _ := strconv.ParseUint(args[1], 10, 32)
			contract, err := s.reg.CreateDeploymentContract(acct, iface.NodeID(nodeID), [32]byte{1}, nil, 0, 0, s.block)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "contract %d\n", contract.ID)
			return nil
		},
	},
	{
		Name:      "cancel",
		Usage:     "Cancel a contract",
		UsageText: "cancel <account> <contract-id>",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			args := c.Args()
			if len(args) != 2 {
				return errors.New("usage: cancel <account> <contract-id>")
			}
			acct, err := accountOf(args[0])
			if err != nil {
				return err
			}
			id, _ := strconv.ParseUint(args[1], 10, 64)
			return s.reg.CancelContract(acct, id, s.block, s.block)
		},
	},
	{
		Name:      "tick",
		Usage:     "Advance the block counter and bill the current slot",
		UsageText: "tick [count]",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			count := uint64(1)
			if args := c.Args(); len(args) == 1 {
				n, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return err
				}
				count = n
			}
			for i := uint64(0); i < count; i++ {
				s.block++
				ids, err := s.reg.BillingSlot(s.block % s.reg.BillingFrequency())
				if err != nil {
					return err
				}
				for _, id := range ids {
					if err := s.engine.Bill(id, s.block, s.block); err != nil {
						fmt.Fprintf(c.App.ErrWriter, "bill %d: %v\n", id, err)
					}
				}
			}
			fmt.Fprintf(c.App.Writer, "block %d\n", s.block)
			return nil
		},
	},
	{
		Name:      "contract",
		Usage:     "Show a contract's state",
		UsageText: "contract <contract-id>",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			args := c.Args()
			if len(args) != 1 {
				return errors.New("usage: contract <contract-id>")
			}
			id, _ := strconv.ParseUint(args[0], 10, 64)
			contract, ok, err := s.reg.Contract(id)
			if err != nil {
				return err
			}
			if !ok {
				return contracterrors.ErrContractNotExists
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 1, ' ', 0)
			fmt.Fprintf(w, "id:\t%d\n", contract.ID)
			fmt.Fprintf(w, "twin:\t%d\n", contract.TwinID)
			fmt.Fprintf(w, "state:\t%s\n", contract.State.String())
			return w.Flush()
		},
	},
	{
		Name:      "exit",
		Usage:     "Exit the sandbox",
		UsageText: "exit",
		Action: func(c *cli.Context) error {
			return io.EOF
		},
	},
}

func runREPL(app *cli.App) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:      "tfchain> ",
		HistoryFile: "",
	})
	if err != nil {
		return fmt.Errorf("creating readline instance: %w", err)
	}
	defer l.Close()
	app.Writer = l.Stdout()
	app.ErrWriter = l.Stderr()

	for {
		line, err := l.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		args, err := shellquote.Split(line)
		if err != nil {
			fmt.Fprintf(app.ErrWriter, "parse error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if err := app.Run(append([]string{"tfchain-cli"}, args...)); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			fmt.Fprintf(app.ErrWriter, "%v\n", err)
		}
	}
}

func main() {
	s, err := newSession()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := cli.NewApp()
	app.Name = "tfchain-cli"
	app.HelpName = ""
	app.UsageText = ""
	app.Usage = "Operator sandbox for the contract registry and billing engine"
	app.Commands = commands
	app.Metadata = map[string]interface{}{
		sessionKey:    s,
		"nextAccount": 1,
	}

	if err := runREPL(app); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
