// Package peers defines the identity of an iterum node and the description of a
// network of nodes.
//
// A peer is identified by a unique name and the address where it can be
// reached. A machine is a peer together with its role in an iterative
// computation: the tags it publishes, the tags it subscribes to, and the
// machines it dials when it starts. A network is the ordered list of machines
// taking part in one computation.
//
// Networks are usually described in a YAML file:
//
//	machines:
//	  - name: machine1
//	    address: 127.0.0.1
//	    port: 1000
//	    produces: [tag1]
//	    subscribes: [tag2]
//	    connect: [machine2]
//
// JSON files with the same shape are also accepted, as is the older
// line-oriented format where each machine is written as its name, its address,
// its port, the produced tags terminated by "-", the subscribed tags terminated
// by "-", and the machines to connect to terminated by "---".
package peers
