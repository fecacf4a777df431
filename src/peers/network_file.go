package peers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// NetworkFile is used to load and persist a Network description on disk. The
// encoding is chosen from the file extension: .yaml/.yml, .json, anything
// else is read as the legacy line format.
type NetworkFile struct {
	l    sync.Mutex
	path string
}

// NewNetworkFile ...
func NewNetworkFile(path string) *NetworkFile {
	return &NetworkFile{
		path: path,
	}
}

// Path ...
func (f *NetworkFile) Path() string {
	return f.path
}

// Network parses the underlying file and returns the corresponding Network.
func (f *NetworkFile) Network() (*Network, error) {
	f.l.Lock()
	defer f.l.Unlock()

	buf, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, fmt.Errorf("%s: empty network file", f.path)
	}

	var network *Network

	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".yaml", ".yml":
		network, err = decodeYAML(buf)
	case ".json":
		network, err = decodeJSON(buf)
	default:
		network, err = ParseLegacy(bytes.NewReader(buf))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", f.path, err)
	}

	return network, nil
}

// Write persists a Network using the encoding matching the file extension.
func (f *NetworkFile) Write(network *Network) error {
	f.l.Lock()
	defer f.l.Unlock()

	var buf bytes.Buffer
	var err error

	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".yaml", ".yml":
		err = network.WriteYAML(&buf)
	case ".json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(network)
	default:
		err = network.WriteLegacy(&buf)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(f.path, buf.Bytes(), 0644)
}

// LoadNetwork reads and validates the network file at path.
func LoadNetwork(path string) (*Network, error) {
	network, err := NewNetworkFile(path).Network()
	if err != nil {
		return nil, err
	}
	if err := network.Validate(); err != nil {
		return nil, err
	}
	return network, nil
}

func decodeYAML(buf []byte) (*Network, error) {
	var network Network
	if err := yaml.Unmarshal(buf, &network); err != nil {
		return nil, err
	}
	network.index()
	return &network, nil
}

func decodeJSON(buf []byte) (*Network, error) {
	var network Network
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&network); err != nil {
		return nil, err
	}
	network.index()
	return &network, nil
}

// WriteYAML encodes the network as YAML.
func (n *Network) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return err
	}
	return enc.Close()
}

// WriteLegacy encodes the network in the line format.
func (n *Network) WriteLegacy(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, m := range n.Machines {
		fmt.Fprintln(bw, m.Name)
		fmt.Fprintln(bw, m.Address)
		fmt.Fprintln(bw, m.Port)
		for _, tag := range m.Produces {
			fmt.Fprintln(bw, tag)
		}
		fmt.Fprintln(bw, "-")
		for _, tag := range m.Subscribes {
			fmt.Fprintln(bw, tag)
		}
		fmt.Fprintln(bw, "-")
		for _, c := range m.Connect {
			fmt.Fprintln(bw, c)
		}
		fmt.Fprintln(bw, "---")
	}
	return bw.Flush()
}

// ParseLegacy reads machines in the line format. Blank lines are skipped and a
// list ends at the first line starting with a dash.
func ParseLegacy(r io.Reader) (*Network, error) {
	sc := bufio.NewScanner(r)

	next := func() (string, bool) {
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line != "" {
				return line, true
			}
		}
		return "", false
	}

	readUntilDash := func() []string {
		res := []string{}
		for {
			line, ok := next()
			if !ok || strings.HasPrefix(line, "-") {
				return res
			}
			res = append(res, line)
		}
	}

	machines := []*Machine{}
	for {
		name, ok := next()
		if !ok {
			break
		}
		address, ok := next()
		if !ok {
			return nil, fmt.Errorf("machine %q: missing address", name)
		}
		portStr, ok := next()
		if !ok {
			return nil, fmt.Errorf("machine %q: missing port", name)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("machine %q: invalid port %q", name, portStr)
		}

		m := &Machine{
			Name:    name,
			Address: address,
			Port:    uint16(port),
		}
		m.Produces = readUntilDash()
		m.Subscribes = readUntilDash()
		m.Connect = readUntilDash()
		machines = append(machines, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return NewNetwork(machines), nil
}
