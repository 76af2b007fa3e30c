// Package layers holds the hand-written building blocks of the seq2seq
// model: embedding table, LSTM cell, attention and the dense projection.
// Every layer computes its forward pass, accumulates its own gradients in
// backward, and exposes its tensors through Parameters.
package layers

import "github.com/manningwu07/seq2seq/optimizations"

// Layer is anything that owns learnable tensors.
type Layer interface {
	Parameters() []*optimizations.Param
}
