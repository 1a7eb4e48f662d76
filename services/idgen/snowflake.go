// Package idgen generates merchant transaction ids.
package idgen

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core/payment"
)

// prefix keeps ids recognisable in gateway dashboards
const prefix = "TXN"

type Snowflake struct {
	node *snowflake.Node
}

var _ payment.IDGenerator = (*Snowflake)(nil)

// NewSnowflake builds a generator for `node`; every running process needs its own node number.
func NewSnowflake(node int64) (*Snowflake, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, errors.Wrapf(err, "creating snowflake node %d", node)
	}
	return &Snowflake{node: n}, nil
}

func (s *Snowflake) NewTransactionID() string {
	return prefix + s.node.Generate().String()
}
