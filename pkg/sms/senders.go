package sms

import (
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/validator"
)

// SenderDirectory maps a destination region to the sender number used for it
type SenderDirectory struct {
	defaultSender string
	byRegion      map[validator.Region]string
}

// NewSenderDirectory builds a directory from region-keyed senders.
// Unknown region keys and empty numbers are ignored.
func NewSenderDirectory(defaultSender string, regionSenders map[string]string) *SenderDirectory {
	d := &SenderDirectory{
		defaultSender: defaultSender,
		byRegion:      make(map[validator.Region]string),
	}
	for key, sender := range regionSenders {
		region := validator.Region(key)
		if !region.IsValid() || sender == "" {
			continue
		}
		d.byRegion[region] = sender
	}
	return d
}

// SenderFor returns the sender for region, falling back to the default
func (d *SenderDirectory) SenderFor(region validator.Region) string {
	if sender, ok := d.byRegion[region]; ok {
		return sender
	}
	return d.defaultSender
}
