// Package distribution splits matched statement income between the writers
// and publishers of each work.
//
// Money is carried as shopspring decimals. For every work and right type the
// gross of its distributable rows is split by share:
// net = round(gross * share / 100, 2). When shares total 100% the cent
// residual left by rounding goes to the largest share and is recorded as a
// rounding adjustment, so the distributed and undistributed totals always add
// up to the statement gross.
package distribution
