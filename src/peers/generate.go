package peers

import (
	"fmt"
)

// Generate builds a network of n machines on a ring neighbourhood. Machine i
// produces tag i and subscribes to the tags of every machine within
// int(alpha*n) positions of it. Each machine dials the next one so the
// connection graph is a chain. Ports start at basePort and are spaced by
// portStep.
func Generate(n int, alpha float64, address string, basePort, portStep uint16) (*Network, error) {
	if n < 1 {
		return nil, fmt.Errorf("network size must be positive, got %d", n)
	}
	if alpha < 0.1 || alpha > 1.0 {
		return nil, fmt.Errorf("alpha must be between 0.1 and 1 inclusive, got %v", alpha)
	}
	if int(basePort)+(n-1)*int(portStep) > 65535 {
		return nil, fmt.Errorf("port range overflows with %d machines", n)
	}

	bound := int(alpha * float64(n))

	machines := make([]*Machine, 0, n)
	for i := 1; i <= n; i++ {
		m := &Machine{
			Name:       fmt.Sprintf("machine%d", i),
			Address:    address,
			Port:       basePort + uint16(i-1)*portStep,
			Produces:   []string{fmt.Sprintf("tag%d", i)},
			Subscribes: []string{},
			Connect:    []string{},
		}
		for x := i - bound; x <= i+bound; x++ {
			if x > 0 && x <= n && x != i {
				m.Subscribes = append(m.Subscribes, fmt.Sprintf("tag%d", x))
			}
		}
		if i < n {
			m.Connect = append(m.Connect, fmt.Sprintf("machine%d", i+1))
		}
		machines = append(machines, m)
	}

	return NewNetwork(machines), nil
}
