package router

import (
	"fmt"
	"math"

	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/peer"
)

// PartitionID names a logical world or shard.
type PartitionID int32

// Point is a position inside a partition.
type Point struct {
	Partition PartitionID
	X, Y, Z   float64
}

// DistanceSq is the squared distance between p and o, or +Inf when they lie in
// different partitions.
func (p Point) DistanceSq(o Point) float64 {
	if p.Partition != o.Partition {
		return math.Inf(1)
	}
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

func (p Point) String() string {
	return fmt.Sprintf("%d:(%.2f, %.2f, %.2f)", p.Partition, p.X, p.Y, p.Z)
}

type TargetKind uint8

const (
	TargetEveryone TargetKind = iota + 1
	TargetSingleEndpoint
	TargetEveryoneNear
	TargetEveryonePartition
	TargetOtherSide
)

func (k TargetKind) String() string {
	switch k {
	case TargetEveryone:
		return "everyone"
	case TargetSingleEndpoint:
		return "single-endpoint"
	case TargetEveryoneNear:
		return "everyone-near"
	case TargetEveryonePartition:
		return "everyone-partition"
	case TargetOtherSide:
		return "other-side"
	default:
		return "invalid"
	}
}

// OutboundTarget selects the endpoints a send addresses. Only the payload
// matching Kind is meaningful.
type OutboundTarget struct {
	kind      TargetKind
	endpoint  peer.Peer
	point     Point
	radius    float64
	partition PartitionID
}

func Everyone() OutboundTarget {
	return OutboundTarget{kind: TargetEveryone}
}

func SingleEndpoint(endpoint peer.Peer) OutboundTarget {
	return OutboundTarget{kind: TargetSingleEndpoint, endpoint: endpoint}
}

func EveryoneNear(point Point, radius float64) OutboundTarget {
	return OutboundTarget{kind: TargetEveryoneNear, point: point, radius: radius}
}

func EveryonePartition(partition PartitionID) OutboundTarget {
	return OutboundTarget{kind: TargetEveryonePartition, partition: partition}
}

func TheOtherSide() OutboundTarget {
	return OutboundTarget{kind: TargetOtherSide}
}

func (t OutboundTarget) Kind() TargetKind       { return t.kind }
func (t OutboundTarget) Endpoint() peer.Peer    { return t.endpoint }
func (t OutboundTarget) Point() Point           { return t.point }
func (t OutboundTarget) Radius() float64        { return t.radius }
func (t OutboundTarget) Partition() PartitionID { return t.partition }

func (t OutboundTarget) Validate() error {
	switch t.kind {
	case TargetEveryone, TargetOtherSide, TargetEveryonePartition:
		return nil
	case TargetSingleEndpoint:
		if t.endpoint == nil {
			return errors.Wrap(errors.ErrInvalidTarget, routerCaller, nil, "nil endpoint")
		}
		return nil
	case TargetEveryoneNear:
		if t.radius < 0 || math.IsNaN(t.radius) || math.IsInf(t.radius, 1) {
			return errors.Wrap(errors.ErrInvalidTarget, routerCaller, nil, "radius %f", t.radius)
		}
		return nil
	default:
		return errors.Wrap(errors.ErrInvalidTarget, routerCaller, nil, "kind %d", t.kind)
	}
}

func (t OutboundTarget) String() string {
	switch t.kind {
	case TargetSingleEndpoint:
		return fmt.Sprintf("%s(%s)", t.kind, t.endpoint)
	case TargetEveryoneNear:
		return fmt.Sprintf("%s(%s, r=%.2f)", t.kind, t.point, t.radius)
	case TargetEveryonePartition:
		return fmt.Sprintf("%s(%d)", t.kind, t.partition)
	default:
		return t.kind.String()
	}
}
