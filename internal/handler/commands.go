package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// adminCommand is one god-mode command.
type adminCommand struct {
	Name string
	// Usage lists the arguments, e.g. "<id> <amount>".
	Usage string
	Help  string
	// MinArgs is checked before Run is called.
	MinArgs int
	Run     func(ctx context.Context, r *Router, ev Event, args []string) error
}

func (c *adminCommand) usageLine() string {
	if c.Usage == "" {
		return "/" + c.Name
	}
	return "/" + c.Name + " " + c.Usage
}

// commandRegistry manages admin command registration and lookup.
type commandRegistry struct {
	commands map[string]*adminCommand
	mu       sync.RWMutex
}

func newCommandRegistry() *commandRegistry {
	return &commandRegistry{
		commands: make(map[string]*adminCommand),
	}
}

// Register adds a command. A command with the same name is replaced.
func (r *commandRegistry) Register(c *adminCommand) error {
	if c == nil {
		return fmt.Errorf("cannot register nil command")
	}
	if c.Name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if c.Run == nil {
		return fmt.Errorf("command %q has no handler", c.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[c.Name] = c
	return nil
}

// Get retrieves a command by name.
func (r *commandRegistry) Get(name string) (*adminCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// List returns all commands sorted by name.
func (r *commandRegistry) List() []*adminCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*adminCommand, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Names returns all command names, sorted.
func (r *commandRegistry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = c.Name
	}
	return names
}
