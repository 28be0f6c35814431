package page

// ParseEnvironOn exposes parseEnviron so both sets of rules are tested on any platform.
var ParseEnvironOn = parseEnviron
