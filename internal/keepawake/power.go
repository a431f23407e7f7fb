package keepawake

func boolPtr(v bool) *bool { return &v }
