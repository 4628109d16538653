package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicMatches(t *testing.T) {
	ev := Event{Table: "anomalies", Op: OpUpdate}

	assert.True(t, Topic{Table: "anomalies", Op: OpAny}.Matches(ev))
	assert.True(t, Topic{Table: "anomalies"}.Matches(ev))
	assert.True(t, Topic{Op: OpUpdate}.Matches(ev))
	assert.False(t, Topic{Table: "anomalies", Op: OpInsert}.Matches(ev))
	assert.False(t, Topic{Table: "shipments", Op: OpAny}.Matches(ev))
}
