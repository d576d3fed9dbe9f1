package mq

import "testing"

func TestOptionsURL(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"defaultVHost", Options{Host: "mq", Port: 5672, User: "g", Pass: "p", VHost: "/"}, "amqp://g:p@mq:5672/"},
		{"emptyVHost", Options{Host: "mq", Port: 5672, User: "g", Pass: "p"}, "amqp://g:p@mq:5672/"},
		{"namedVHost", Options{Host: "mq", Port: 5673, User: "g", Pass: "p", VHost: "hotel"}, "amqp://g:p@mq:5673/hotel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNilClientIsClosed(t *testing.T) {
	var c *Client
	if !c.IsClosed() {
		t.Error("nil client should report closed")
	}
	c.Close()
}
